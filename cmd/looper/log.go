package main

import (
	"fmt"
	"io"
	"os"

	"github.com/chase3718/lou-looper/internal/note"
	"github.com/chase3718/lou-looper/internal/smfexport"
	"github.com/chase3718/lou-looper/internal/transport"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dumpCmd, exportCmd, eraseCmd, portsCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the notes stored in the log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		nl, storage, err := openLog(cfg, true)
		if err != nil {
			return err
		}
		defer storage.Close()

		notes, err := nl.Notes()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d/%d notes, write cursor %d\n", nl.Len(), nl.Capacity(), nl.WriteCursor())
		printNotes(cmd.OutOrStdout(), notes)
		return nil
	},
}

func printNotes(w io.Writer, notes []note.Note) {
	for i, n := range notes {
		fmt.Fprintf(w, "%3d  %-4s gap %5dms  dur %5dms  %-40s %s\n",
			i, note.PitchName(n.Key()), n.TimeElapsed, n.Duration, n.Start, n.Stop)
	}
}

var exportCmd = &cobra.Command{
	Use:   "export <file.mid>",
	Short: "Export the stored take as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		nl, storage, err := openLog(cfg, true)
		if err != nil {
			return err
		}
		defer storage.Close()

		notes, err := nl.Notes()
		if err != nil {
			return err
		}
		if err := smfexport.WriteFile(args[0], notes); err != nil {
			return fmt.Errorf("export %s: %w", args[0], err)
		}
		logger.Infow("export: written", "file", args[0], "notes", len(notes))
		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Empty the note log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		nl, storage, err := openLog(cfg, false)
		if err != nil {
			return err
		}
		defer storage.Close()

		dropped := nl.Len()
		if err := nl.ResetWriteAddr(); err != nil {
			return err
		}
		logger.Infow("erase: log emptied", "dropped", dropped, "path", cfg.Storage.Path)
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and host MIDI ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListPorts()
		if err != nil {
			return err
		}
		midiPorts, err := transport.ListMIDIPorts()
		if err != nil {
			logger.Warnw("ports: midi unavailable", "err", err)
		}
		ports = append(ports, midiPorts...)
		if len(ports) == 0 {
			fmt.Fprintln(os.Stderr, "no ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}
