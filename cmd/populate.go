package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/policy-audit/internal/fetcher"
	"github.com/sells-group/policy-audit/internal/model"
	"github.com/sells-group/policy-audit/internal/ocr"
)

var (
	populateDir string
	populateFTP []string
)

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Rebuild the policy page corpus from PDF files",
	Long:  "Extracts every page of every PDF under the policy directory (plus any FTP sources) and replaces the searchable corpus with them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("populate"); err != nil {
			return err
		}

		dir := populateDir
		if dir == "" {
			dir = cfg.Populate.PolicyDir
		}
		sources := append(append([]string(nil), cfg.Populate.FTPSources...), populateFTP...)

		extractor, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		files, err := policyFiles(dir)
		if err != nil {
			if len(sources) == 0 {
				return err
			}
			zap.L().Warn("populate: policy directory unavailable, using ftp sources only", zap.String("dir", dir), zap.Error(err))
		}

		if len(sources) > 0 {
			tmp, err := os.MkdirTemp("", "policy-audit-ftp-")
			if err != nil {
				return eris.Wrap(err, "populate: create temp dir")
			}
			defer os.RemoveAll(tmp) //nolint:errcheck

			ftp := fetcher.NewFTPFetcher(fetcher.FTPOptions{
				Timeout: time.Duration(cfg.Populate.FTPTimeoutSecs) * time.Second,
			})
			fetched, err := ftp.FetchPDFs(ctx, sources, tmp)
			if err != nil {
				return err
			}
			files = append(files, fetched...)
		}

		pages := collectPages(ctx, extractor, files)
		if len(pages) == 0 {
			return eris.New("populate: no text extracted")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ReplacePages(ctx, pages)
		if err != nil {
			return err
		}
		zap.L().Info("populate: corpus rebuilt",
			zap.Int("files", len(files)),
			zap.Int("pages", n),
			zap.String("store", cfg.Store.Driver),
		)
		return nil
	},
}

// policyFiles returns the .pdf files under dir, matched case-insensitively,
// in lexical path order.
func policyFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".pdf") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "populate: walk %s", dir)
	}
	return files, nil
}

// collectPages extracts each file and keeps its non-blank pages, numbered
// by their position in the document. Files that fail to extract are skipped.
func collectPages(ctx context.Context, extractor ocr.Extractor, files []string) []model.PolicyPage {
	var pages []model.PolicyPage
	for _, path := range files {
		texts, err := extractor.ExtractPages(ctx, path)
		if err != nil {
			zap.L().Warn("populate: skipping unreadable document", zap.String("path", path), zap.Error(err))
			continue
		}

		name := filepath.Base(path)
		kept := 0
		for i, text := range texts {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			pages = append(pages, model.PolicyPage{Filename: name, PageNumber: i + 1, Content: text})
			kept++
		}
		zap.L().Debug("populate: extracted document", zap.String("file", name), zap.Int("pages", len(texts)), zap.Int("kept", kept))
	}
	return pages
}

func init() {
	populateCmd.Flags().StringVar(&populateDir, "dir", "", "policy directory (default from config)")
	populateCmd.Flags().StringSliceVar(&populateFTP, "ftp", nil, "additional ftp:// PDF sources")
	rootCmd.AddCommand(populateCmd)
}
