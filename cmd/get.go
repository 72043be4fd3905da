package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/internal/git"
)

// Get writes the content of an object to outPath, or to env.Out when
// outPath is empty or "-". Decrypted output written inside a git work
// tree without being ignored gets a warning.
func Get(env *Env, id, outPath string, decrypt bool) error {
	var data []byte
	var err error
	if decrypt {
		err = env.withPassphrase(false, func(secret string) error {
			data, err = env.Store.GetAndDecrypt(id, secret)
			return err
		})
	} else {
		data, err = env.Store.Get(id)
	}
	if err != nil {
		return err
	}
	if decrypt {
		defer crypto.ClearBytes(data)
	}

	if outPath == "" || outPath == "-" {
		_, err = env.Out.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	fmt.Fprintf(env.Out, "Wrote %s (%s) to %s\n", id, formatSize(uint64(len(data))), outPath)
	if decrypt {
		fmt.Fprint(env.Out, git.Warning(outPath, git.Check(outPath)))
	}
	return nil
}
