package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloudvault/crypto"
	"github.com/illarion/cloudvault/internal/textdiff"
)

// Diff compares a stored object with a local file. By default the output
// is the merged document with conflict markers around each difference;
// unified prints -/+ lines instead.
func Diff(env *Env, id, path string, decrypt, unified bool) error {
	local, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer crypto.ClearBytes(local)

	var stored []byte
	if decrypt {
		err = env.withPassphrase(false, func(secret string) error {
			stored, err = env.Store.GetAndDecrypt(id, secret)
			return err
		})
	} else {
		stored, err = env.Store.Get(id)
	}
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(stored)

	if textdiff.Equal(stored, local) {
		fmt.Fprintln(env.Out, "No changes detected")
		return nil
	}

	if unified || !textdiff.IsText(stored) || !textdiff.IsText(local) {
		fmt.Fprint(env.Out, textdiff.Unified("stored/"+id, "local/"+path, stored, local))
		return nil
	}
	_, err = env.Out.Write(textdiff.Markers(local, stored))
	return err
}
