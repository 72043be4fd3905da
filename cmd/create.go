package cmd

import "fmt"

// Create makes an empty object and prints the id the store assigned
func Create(env *Env, name string) error {
	id, err := env.Store.Create(name)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, id)
	return nil
}
