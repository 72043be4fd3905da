package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/illarion/cloudvault/backends/boltdb"
	"github.com/illarion/cloudvault/factory"
)

// Compact rewrites a bolt store to reclaim space left by deleted objects
func Compact(out io.Writer, uri string) error {
	u, err := factory.Parse(uri)
	if err != nil {
		return err
	}
	if u.Scheme != "bolt" {
		return ErrCompactUnsupported
	}
	path, err := factory.LocalPath(u)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	sizeBefore := info.Size()

	db, err := boltdb.Open(path)
	if err != nil {
		return err
	}
	if err := db.Compact(); err != nil {
		_ = db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}

	info, err = os.Stat(path)
	if err != nil {
		return err
	}
	sizeAfter := info.Size()

	fmt.Fprintf(out, "Compacted: %s -> %s\n", formatSize(uint64(sizeBefore)), formatSize(uint64(sizeAfter)))
	return nil
}
