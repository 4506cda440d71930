package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/antoinenguyen27/siren/pkg/presenter"
	"github.com/antoinenguyen27/siren/pkg/skills"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Manage recorded skills",
	Long:  `List, show, and delete the skills recorded in demo mode.`,
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded skills",
	Run: func(cmd *cobra.Command, args []string) {
		site, _ := cmd.Flags().GetString("site")
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := listSkills(os.Stdout, skills.NewStore(cfg.Skills.Dir), site, asJSON); err != nil {
			presenter.Error(err, "Failed to list skills")
			os.Exit(1)
		}
	},
}

var skillsShowCmd = &cobra.Command{
	Use:   "show <filename>",
	Short: "Print a skill document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entry, err := skills.NewStore(cfg.Skills.Dir).Get(args[0])
		if err != nil {
			presenter.Error(err, "Failed to load skill")
			os.Exit(1)
		}
		fmt.Println(entry.Content)
	},
}

var skillsDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a skill",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			if !presenter.Confirm(fmt.Sprintf("Delete skill %s?", filename)) {
				presenter.Info("Deletion cancelled.")
				return
			}
		}
		if err := skills.NewStore(cfg.Skills.Dir).Delete(filename); err != nil {
			presenter.Error(err, "Failed to delete skill")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Skill %s deleted", filename))
	},
}

func init() {
	skillsListCmd.Flags().String("site", "", "Only list skills recorded for this site")
	skillsListCmd.Flags().Bool("json", false, "Output in JSON format")
	skillsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")

	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsShowCmd)
	skillsCmd.AddCommand(skillsDeleteCmd)
}

func listSkills(w io.Writer, store *skills.Store, site string, asJSON bool) error {
	var (
		entries []skills.Entry
		err     error
	)
	if site != "" {
		entries, err = store.LoadForDomain(site)
	} else {
		entries, err = store.LoadAll()
	}
	if err != nil {
		return err
	}

	metadata := make([]skills.Metadata, 0, len(entries))
	for _, e := range entries {
		metadata = append(metadata, skills.MetadataOf(e))
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(metadata), "failed to encode skills")
	}
	return renderSkills(w, metadata)
}

func renderSkills(w io.Writer, metadata []skills.Metadata) error {
	if len(metadata) == 0 {
		_, err := fmt.Fprintln(w, "No skills recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tSITE\tCONFIDENCE\tNAME")
	for _, m := range metadata {
		confidence := m.Confidence
		if confidence == "" {
			confidence = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Filename, m.Site, confidence, m.Name)
	}
	return tw.Flush()
}
