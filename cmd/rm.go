package cmd

import "fmt"

// Rm deletes an object
func Rm(env *Env, id string) error {
	if err := env.Store.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "Removed %s\n", id)
	return nil
}
