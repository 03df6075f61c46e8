package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	out := flag.String("out", filepath.Join("testdata", "vectors"), "output directory for vector files")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o750); err != nil {
		fatalf("mkdir %s: %v", *out, err)
	}
	for _, f := range buildAll() {
		path := filepath.Join(*out, f.Gate+".json")
		mustWriteFixture(path, f)
		fmt.Printf("ok: %s (%d vectors)\n", path, len(f.Vectors))
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
