package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/tutorbot/app/content"
)

func newContentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Theory catalog tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate a theory catalog and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContentCheck(cmd, args[0])
		},
	})
	return cmd
}

func runContentCheck(cmd *cobra.Command, path string) error {
	c, err := content.Load(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	missing := c.MissingDocuments()
	for _, doc := range missing {
		fmt.Fprintf(out, "missing document: %s\n", doc)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d document(s) not found", len(missing))
	}
	fmt.Fprintf(out, "%s: %d topics ok\n", path, c.Len())
	return nil
}
