package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facemood/internal/store"
	"github.com/andresmejia3/facemood/internal/utils"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("no database configured (set --db, DATABASE_URL or POSTGRES_HOST)")

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past recognitions stored in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		if DB == nil {
			return errNoDatabase
		}
		recs, err := DB.ListRecognitions(cmd.Context(), historyLimit)
		if err != nil {
			utils.ShowError("Failed to list recognitions", err, nil)
			return err
		}
		printHistory(os.Stdout, recs)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of rows to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(out io.Writer, recs []store.Recognition) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No recognitions found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tSTATUS\tNAME\tEMOTION\tRECOGNIZED")
	fmt.Fprintln(w, "--\t-------\t------\t----\t-------\t----------")

	for _, r := range recs {
		session := r.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, session, r.Result.Status, r.Result.Name,
			r.Result.Emotion, r.RecognizedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
