package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"kisr.dev/kisr/invite"
	"kisr.dev/kisr/node/store"
	"kisr.dev/kisr/protocol"
)

const testTxID = "f1e2d3c4b5a697881223344556677889aabbccddeeff00112233445566778899"

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(context.Background(), append([]string{"kisr"}, args...))
	return out.String(), err
}

func decodeOut(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("output not JSON: %v\n%s", err, out)
	}
	return m
}

func TestCodeGenerateAndNormalize(t *testing.T) {
	out, err := runApp(t, "code", "generate")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	code, _ := decodeOut(t, out)["code"].(string)
	if !protocol.ValidateCode(code) {
		t.Fatalf("generated invalid code %q", code)
	}

	out, err = runApp(t, "code", "normalize", "kisr-abcd efgh")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	m := decodeOut(t, out)
	if m["code"] != "KISR-ABCDEFGH" || m["valid"] != true {
		t.Fatalf("normalize output: %v", m)
	}

	_, err = runApp(t, "code", "normalize")
	if exitCode(err) != 2 {
		t.Fatalf("missing arg exit=%d err=%v", exitCode(err), err)
	}
}

func TestDeeplinkBuildParse(t *testing.T) {
	out, err := runApp(t, "deeplink", "build", "--txid", testTxID, "--code", "kisr-abcdefgh", "--inviter", "kaspa:qqinviter")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	link, _ := decodeOut(t, out)["deeplink"].(string)
	want := "kaspa:kaspa:qqinviter/redeem?code=KISR-ABCDEFGH&txid=" + testTxID
	if link != want {
		t.Fatalf("link=%q want %q", link, want)
	}

	out, err = runApp(t, "deeplink", "parse", link)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := decodeOut(t, out)
	if m["txid"] != testTxID || m["code"] != "KISR-ABCDEFGH" || m["inviter"] != "kaspa:qqinviter" {
		t.Fatalf("parse output: %v", m)
	}

	_, err = runApp(t, "deeplink", "parse", "bitcoin:redeem?txid=x")
	if !protocol.HasCode(err, protocol.KISR_ERR_INVALID_DEEPLINK) || exitCode(err) != 2 {
		t.Fatalf("bad scheme err=%v", err)
	}
	_, err = runApp(t, "deeplink", "build", "--txid", testTxID, "--code", "KISR-0000")
	if !protocol.HasCode(err, protocol.KISR_ERR_INVALID_CODE) {
		t.Fatalf("bad code err=%v", err)
	}
}

func TestEnvelopeBuildDecryptInspect(t *testing.T) {
	out, err := runApp(t, "--network", "testnet-10", "envelope", "build",
		"--code", "KISR-ABCDEFGH", "--txid", testTxID, "--index", "1",
		"--amount", "1.5", "--presig", "aabb", "--memo", "hello")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	built := decodeOut(t, out)
	env, _ := built["envelope"].(string)
	if built["code"] != "KISR-ABCDEFGH" || !strings.HasPrefix(env, "4b4953522d01") {
		t.Fatalf("build output: %v", built)
	}

	out, err = runApp(t, "envelope", "inspect", env)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if v := decodeOut(t, out)["version"]; v != float64(1) {
		t.Fatalf("version=%v", v)
	}

	out, err = runApp(t, "envelope", "decrypt", "--code", "kisr abcd efgh", "--envelope", env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	p := decodeOut(t, out)
	if p["txid"] != testTxID || p["index"] != float64(1) || p["amount_sompi"] != float64(150_000_000) ||
		p["presig"] != "aabb" || p["network"] != "testnet-10" || p["memo"] != "hello" {
		t.Fatalf("decrypt output: %v", p)
	}

	_, err = runApp(t, "envelope", "decrypt", "--code", "KISR-ABCDEFGJ", "--envelope", env)
	if !protocol.HasCode(err, protocol.KISR_ERR_DECRYPTION_FAILED) || exitCode(err) != 1 {
		t.Fatalf("wrong code err=%v", err)
	}
}

func TestEnvelopeBuildRejectsAmbiguousAmount(t *testing.T) {
	_, err := runApp(t, "envelope", "build", "--txid", testTxID, "--presig", "aa", "--amount", "1", "--sompi", "5")
	if exitCode(err) != 2 {
		t.Fatalf("exit=%d err=%v", exitCode(err), err)
	}
}

func TestConfigCommandLayersFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kisr.toml")
	body := "network = \"testnet-10\"\ndata_dir = \"" + filepath.ToSlash(dir) + "\"\nlog_level = \"debug\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := runApp(t, "--config", path, "--log-level", "WARN", "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	m := decodeOut(t, out)
	if m["network"] != "testnet-10" || m["log_level"] != "warn" || m["node_url"] != "ws://127.0.0.1:18210" {
		t.Fatalf("config output: %v", m)
	}
	if _, ok := m["bridge_token"]; ok {
		t.Fatalf("bridge token must not be printed")
	}

	_, err = runApp(t, "--network", "devnet", "config")
	if exitCode(err) != 2 {
		t.Fatalf("bad network exit=%d err=%v", exitCode(err), err)
	}
}

func TestInviteListReadsLedger(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(dir, protocol.Testnet)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	id := uuid.New()
	if err := db.PutInvite(&invite.CreateProgress{ID: id, State: invite.CreateFunded, Network: protocol.Testnet, Amount: 100_000_000}); err != nil {
		t.Fatalf("PutInvite: %v", err)
	}
	_ = db.Close()

	out, err := runApp(t, "--network", "testnet-10", "--datadir", dir, "invite", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var items []inviteListItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("list output: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].ID != id.String() || items[0].State != "FUNDED" || items[0].AmountKAS != "1" {
		t.Fatalf("items=%+v", items)
	}
}

func TestInviteCreateNeedsBridge(t *testing.T) {
	_, err := runApp(t, "--datadir", t.TempDir(), "invite", "create", "--amount", "1")
	if exitCode(err) != 2 || !strings.Contains(err.Error(), "bridge_url") {
		t.Fatalf("exit=%d err=%v", exitCode(err), err)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(errors.New("x")) != 1 {
		t.Fatalf("plain error should exit 1")
	}
	if exitCode(usagef("x")) != 2 {
		t.Fatalf("usage error should exit 2")
	}
	if exitCode(protocol.NewError(protocol.KISR_ERR_ADAPTER, "x")) != 1 {
		t.Fatalf("adapter error should exit 1")
	}
}
