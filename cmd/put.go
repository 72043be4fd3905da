package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloudvault/crypto"
)

// Put replaces the content of an object with the file at path. With
// create the object is created first, named id.
func Put(env *Env, id, path string, encrypt, create bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer crypto.ClearBytes(data)

	if create {
		created, err := env.Store.Create(id)
		if err != nil {
			return err
		}
		if created != id {
			fmt.Fprintf(env.Out, "Created %s as %s\n", id, created)
		}
		id = created
	}

	if encrypt {
		err = env.withPassphrase(true, func(secret string) error {
			return env.Store.EncryptAndUpdate(id, data, secret)
		})
	} else {
		err = env.Store.Update(id, data)
	}
	if err != nil {
		return err
	}

	size := uint64(len(data))
	if encrypt {
		size += crypto.Overhead
	}
	fmt.Fprintf(env.Out, "Stored %s (%s)\n", id, formatSize(size))
	return nil
}
