package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/app"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/buildinfo"
)

type rootOptions struct {
	server  string
	timeout time.Duration
	json    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "aae",
		Short:         "Client du serveur Anime Auto Encoder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("AAE_SERVER_URL", "http://127.0.0.1:8080"), "URL du serveur")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Timeout HTTP")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Sortie JSON brute")

	client := func() *apiClient { return newAPIClient(opts.server, opts.timeout) }

	root.AddCommand(
		newSubmitCmd(opts, client),
		newRunsCmd(opts, client),
		newQueueCmd(opts, client),
		newHealthCmd(opts, client),
		newVersionCmd(opts, client),
	)
	return root
}

func newSubmitCmd(opts *rootOptions, client func() *apiClient) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "submit <source>",
		Short: "Soumet un fichier (chemin local ou URL) au pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := client().do(cmd.Context(), http.MethodPost, "/files", app.Submission{Source: args[0], Name: name})
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), raw)
			}
			var resp struct {
				RunID string `json:"runId"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Run démarré:", resp.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Nom de fichier publié (défaut: nom de la source)")
	return cmd
}

func newRunsCmd(opts *rootOptions, client func() *apiClient) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "Liste les runs récents ou affiche un run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				var run app.RunDTO
				raw, err := client().getJSON(cmd.Context(), "/runs/"+args[0], &run)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), raw)
				}
				renderRuns(cmd.OutOrStdout(), []app.RunDTO{run})
				return nil
			}
			var runs []app.RunDTO
			raw, err := client().getJSON(cmd.Context(), "/runs?limit="+strconv.Itoa(limit), &runs)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), raw)
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Nombre maximum de runs")
	return cmd
}

func newQueueCmd(opts *rootOptions, client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Affiche l'état du slot d'encodage et la file d'attente",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var snap app.AdmissionSnapshot
			raw, err := client().getJSON(cmd.Context(), "/queue", &snap)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), raw)
			}
			renderQueue(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newHealthCmd(_ *rootOptions, client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Vérifie que le serveur répond",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := client().getJSON(cmd.Context(), "/health", nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newVersionCmd(_ *rootOptions, client func() *apiClient) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Version du serveur (ou du client avec --local)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if local {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
				return nil
			}
			raw, err := client().getJSON(cmd.Context(), "/version", nil)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Affiche la version du client")
	return cmd
}

func renderRuns(w io.Writer, runs []app.RunDTO) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "Aucun run.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Fichier", "État", "Qualités", "Mis à jour", "Erreur"})
	for _, r := range runs {
		errText := r.ErrorCode
		if r.Error != "" {
			errText = r.ErrorCode + ": " + r.Error
		}
		t.AppendRow(table.Row{r.ID, r.FileName, r.State, strings.Join(r.Qualities, ","), humanize.Time(r.UpdatedAt), errText})
	}
	t.Render()
}

func renderQueue(w io.Writer, snap app.AdmissionSnapshot) {
	holder := "-"
	if snap.Busy {
		holder = strconv.FormatInt(snap.Holder, 10)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Occupé", "Détenteur", "En attente"})
	pending := make([]string, 0, len(snap.Pending))
	for _, id := range snap.Pending {
		pending = append(pending, strconv.FormatInt(id, 10))
	}
	t.AppendRow(table.Row{snap.Busy, holder, strings.Join(pending, " ")})
	t.Render()
}

func writeJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(append(raw, '\n'))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
