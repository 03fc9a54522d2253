package main

import (
	"bufio"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trustelem/ext4dump/ext4"
	"github.com/trustelem/ext4dump/image"
)

var (
	flagDebug        bool
	flagVerifyHashes bool
	flagOutput       string
)

var rootCmd = &cobra.Command{
	Use:   "ext4dump IMAGE",
	Short: "Dump every on-disk structure of a raw ext4 partition image.",
	Long: `ext4dump walks a raw ext4 partition image top-down and prints a labelled
dump of the superblock, every block group descriptor, every allocated inode,
each inode's extended attributes and extent tree, and every directory entry,
including hash-tree indexed directories. The image is never modified.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagDebug {
			logrus.SetLevel(logrus.DebugLevel)
		}

		img, err := image.Open(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		out := os.Stdout
		if flagOutput != "" {
			f, err := os.Create(flagOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		w := bufio.NewWriter(out)
		defer w.Flush()

		logrus.Infof("parsing %s (%d bytes, modified %s)", img.Path, img.Size, img.ModTime.UTC().Format("2006-01-02 15:04:05"))

		walker := ext4.NewWalker(img.Bytes(),
			ext4.WithOutput(w),
			ext4.WithDebug(flagDebug),
			ext4.WithVerifyHashes(flagVerifyHashes),
		)
		return walker.Walk()
	},
}

func main() {
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "include zero-size inode slots and enable debug logging")
	rootCmd.Flags().BoolVar(&flagVerifyHashes, "verify-hashes", false, "recompute HTREE directory hashes for every name")
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the dump to a file instead of standard output")

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
