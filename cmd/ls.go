package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
)

// Ls prints every object in the store
func Ls(env *Env) error {
	objects, err := env.Store.List()
	if err != nil {
		return err
	}

	if len(objects) == 0 {
		fmt.Fprintf(env.Out, "No objects in %s\n", env.URI)
		return nil
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })

	tw := tabwriter.NewWriter(env.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tMODIFIED")
	for _, o := range objects {
		modified := o.LastModified
		if modified == "" {
			modified = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Name, formatSize(o.Size), modified)
	}
	return tw.Flush()
}
