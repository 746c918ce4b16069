package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/npc-cognition/internal/config"
	"github.com/talgya/npc-cognition/internal/decision"
	"github.com/talgya/npc-cognition/internal/personality"
	"github.com/talgya/npc-cognition/internal/stimulus"
	"github.com/talgya/npc-cognition/internal/tools"
)

var (
	decidePreset  string
	decideType    string
	decideActor   string
	decideContent string
	decideRepeat  int
	decideJSON    bool

	decideCmd = &cobra.Command{
		Use:   "decide",
		Short: "Run one stimulus through a single character and print the weighing",
		Example: `  npcsim decide --preset aggressive --actor bram --content "You worthless fool!"
  npcsim decide --type environment --content "A wolf howls nearby." --repeat 5`,
		RunE: runDecide,
	}

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "List registered tools and their trait sensitivities",
		RunE:  runTools,
	}

	presetsCmd = &cobra.Command{
		Use:   "presets",
		Short: "List personality presets",
		RunE:  runPresets,
	}
)

func init() {
	decideCmd.Flags().StringVar(&decidePreset, "preset", "friendly", "personality preset")
	decideCmd.Flags().StringVar(&decideType, "type", string(stimulus.TypeDialogue), "event type")
	decideCmd.Flags().StringVar(&decideActor, "actor", "", "who caused the event")
	decideCmd.Flags().StringVar(&decideContent, "content", "", "event content")
	decideCmd.Flags().IntVar(&decideRepeat, "repeat", 1, "deliver the event this many times")
	decideCmd.Flags().BoolVar(&decideJSON, "json", false, "print decision records as JSON")
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	spec := config.CharacterSpec{Name: "subject", Preset: decidePreset}
	prof, err := config.BuildProfile(spec, nil, p.tmpl, p.lib)
	if err != nil {
		return err
	}
	c, err := p.sim.Spawn(prof, p.decision)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i := 0; i < decideRepeat; i++ {
		ev := stimulus.RawEvent{
			Type:    stimulus.EventType(decideType),
			Actor:   decideActor,
			Content: decideContent,
		}
		if _, err := p.sim.InjectEvent(c.ID, ev); err != nil {
			return err
		}
		p.sim.TickMinute(uint64(i + 1))

		rec, ok := c.History().Last()
		if !ok {
			return fmt.Errorf("no decision recorded for delivery %d", i+1)
		}
		if decideJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		printRecord(out, i+1, rec)
	}
	return nil
}

func printRecord(w io.Writer, n int, rec decision.DecisionRecord) {
	s := rec.Stimulus
	fmt.Fprintf(w, "%s delivery: schema=%s intent=%s", humanize.Ordinal(n), s.Schema, s.Intent)
	if s.MatchedRule != "" {
		fmt.Fprintf(w, " rule=%s", s.MatchedRule)
	}
	fmt.Fprintln(w)
	for _, d := range s.Salience.Dimensions() {
		fmt.Fprintf(w, "  %-12s %.3f\n", d, s.Salience.Get(d))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  TOOL\tBASE\tPERSONALITY\tQUIRKED\tDAMPING\tFINAL\t")
	for _, wt := range rec.Weights {
		mark := ""
		if wt.Tool == rec.Selected {
			mark = "<"
		}
		fmt.Fprintf(tw, "  %s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%s\n",
			wt.Tool, wt.Base, wt.Personality, wt.Quirked, wt.Damping, wt.Final, mark)
	}
	tw.Flush()

	if rec.Failed {
		fmt.Fprintf(w, "  -> %s failed: %s\n\n", rec.Selected, rec.Error)
		return
	}
	fmt.Fprintf(w, "  -> %s (%s, intensity %.2f)\n\n", rec.Selected, rec.Result.Reference, rec.Result.Intensity)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	dc, err := cfg.DecisionConfig()
	if err != nil {
		return err
	}
	return printTools(cmd.OutOrStdout(), reg, dc)
}

// printTools lists every tool with the sensitivities the engine applies.
func printTools(w io.Writer, reg *tools.Registry, dc decision.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tSENSITIVITIES\t")
	for _, t := range reg.All() {
		line := ""
		for i, s := range dc.SensitivitiesFor(t) {
			if i > 0 {
				line += ", "
			}
			line += fmt.Sprintf("%s %+.2f", s.Trait, s.Weight)
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", t.Name(), line)
	}
	return tw.Flush()
}

func runPresets(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, name := range personality.PresetNames() {
		p, _ := personality.LookupPreset(name)
		fmt.Fprintf(out, "%s: %s\n", p.Name, p.Description)
		for _, t := range personality.AllTraits() {
			if v, ok := p.Traits[t]; ok {
				fmt.Fprintf(out, "  %-18s %.2f\n", t, v)
			}
		}
		for _, q := range p.Quirks {
			fmt.Fprintf(out, "  quirk: %s\n", q)
		}
	}
	return nil
}
