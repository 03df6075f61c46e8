// Package store is the local invite ledger: create progress and redemption
// receipts, keyed so an interrupted flow can be listed and resumed.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/protocol"
)

var (
	bucketInvites     = []byte("invites_by_id")
	bucketRedemptions = []byte("redemptions_by_anchor")
)

type DB struct {
	dir     string
	network protocol.NetworkID
	db      *bolt.DB
}

var _ invite.ProgressStore = (*DB)(nil)

// Open opens (creating if needed) the ledger for network under datadir.
func Open(datadir string, network protocol.NetworkID) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	dir := NetworkDir(datadir, network.String())
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	m, err := readManifest(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network.String()}
		if err := writeManifestAtomic(dir, m); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Network != network.String() {
		return nil, fmt.Errorf("ledger %s belongs to %s, not %s", dir, m.Network, network)
	}

	bdb, err := bolt.Open(filepath.Join(dir, "kisr.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketInvites, bucketRedemptions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &DB{dir: dir, network: network, db: bdb}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Dir() string { return d.dir }

func (d *DB) Network() protocol.NetworkID { return d.network }

func (d *DB) PutInvite(p *invite.CreateProgress) error {
	if p == nil {
		return fmt.Errorf("store: nil invite")
	}
	if p.Network != d.network {
		return fmt.Errorf("store: invite network %s in %s ledger", p.Network, d.network)
	}
	b, err := encodeInvite(p)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvites).Put(p.ID[:], b)
	})
}

func (d *DB) GetInvite(id uuid.UUID) (*invite.CreateProgress, bool, error) {
	var out *invite.CreateProgress
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketInvites).Get(id[:])
		if v == nil {
			return nil
		}
		p, err := decodeInvite(id, d.network, v)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// ListInvites returns every invite, oldest first.
func (d *DB) ListInvites() ([]*invite.CreateProgress, error) {
	var out []*invite.CreateProgress
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvites).ForEach(func(k, v []byte) error {
			id, err := uuid.FromBytes(k)
			if err != nil {
				return fmt.Errorf("invite key: %w", err)
			}
			p, err := decodeInvite(id, d.network, v)
			if err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (d *DB) PutRedemption(r *invite.RedemptionReceipt) error {
	if r == nil {
		return fmt.Errorf("store: nil redemption")
	}
	b, err := encodeRedemption(r)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRedemptions).Put(r.AnchorTxID[:], b)
	})
}

func (d *DB) GetRedemption(anchor chainhash.Hash) (*invite.RedemptionReceipt, bool, error) {
	var out *invite.RedemptionReceipt
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRedemptions).Get(anchor[:])
		if v == nil {
			return nil
		}
		r, err := decodeRedemption(anchor, v)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (d *DB) SaveInvite(p *invite.CreateProgress) error { return d.PutInvite(p) }

func (d *DB) SaveRedemption(r *invite.RedemptionReceipt) error { return d.PutRedemption(r) }
