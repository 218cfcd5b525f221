package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Jim/internal/jim/trait"
)

func init() {
	personalityCmd := &cobra.Command{
		Use:     "personality",
		Aliases: []string{"p"},
		Short:   "Inspect or change Jim's personality",
	}
	personalityCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the active personality",
			Args:  cobra.NoArgs,
			RunE:  runPersonalityShow,
		},
		&cobra.Command{
			Use:       "preset <name>",
			Short:     "Apply a preset (" + strings.Join(trait.PresetNames(), ", ") + ")",
			Args:      cobra.ExactArgs(1),
			ValidArgs: trait.PresetNames(),
			RunE:      runPersonalityPreset,
		},
		&cobra.Command{
			Use:   "set <trait> <0-10>",
			Short: "Set a single trait",
			Args:  cobra.ExactArgs(2),
			RunE:  runPersonalitySet,
		},
	)
	rootCmd.AddCommand(personalityCmd)
}

func runPersonalityShow(cmd *cobra.Command, _ []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	m, err := o.traits(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), trait.Describe(m.Profile()))
	return nil
}

func runPersonalityPreset(cmd *cobra.Command, args []string) error {
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	m, err := o.traits(cmd.Context())
	if err != nil {
		return err
	}
	if err := m.ApplyPreset(cmd.Context(), strings.ToLower(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied preset %s\n", m.Profile().Preset)
	return nil
}

func runPersonalitySet(cmd *cobra.Command, args []string) error {
	value, err := trait.ParseValue(args[1])
	if err != nil {
		return err
	}
	o, err := openOffline()
	if err != nil {
		return err
	}
	defer o.Close()

	m, err := o.traits(cmd.Context())
	if err != nil {
		return err
	}
	name := trait.NormaliseName(args[0])
	got, err := m.SetTrait(cmd.Context(), name, value)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %d/10\n", name, got)
	return nil
}
