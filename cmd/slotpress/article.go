package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slotpress/slotpress/internal/pipeline"
	"github.com/slotpress/slotpress/internal/publish"
	"github.com/slotpress/slotpress/utils"
)

func articleCMD() *cobra.Command {
	var cfgPath string
	var doPublish bool

	var article = &cobra.Command{
		Use:   "article [topic]",
		Short: "Produce a single article for the given topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.TrimSpace(args[0])
			if topic == "" {
				return fmt.Errorf("topic must not be empty")
			}

			a, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, outcome, err := a.runFunc()(ctx, topic)
			if err != nil {
				return err
			}

			fmt.Printf("outcome: %s\n", outcome)
			if run.ArtifactPath != "" {
				fmt.Printf("article: %s\n", run.ArtifactPath)
			}

			if doPublish && outcome == pipeline.OutcomeSuccess {
				if !a.publisher.Configured() {
					return fmt.Errorf("cms credentials not configured")
				}
				art := publish.Article{Topic: topic, Title: topic, Body: utils.StripFrontmatter(run.ArtifactText)}
				if run.Outline != nil {
					if run.Outline.MainTitle != "" {
						art.Title = run.Outline.MainTitle
					}
					art.Description = run.Outline.MetaDescription
					art.Keywords = run.Outline.Keywords
				}
				if err := a.publisher.UploadArticle(ctx, art); err != nil {
					return fmt.Errorf("publishing article: %w", err)
				}
				fmt.Println("published to cms")
			}
			return nil
		},
	}
	article.Flags().BoolVar(&doPublish, "publish", false, "upload the article to the CMS on success")
	article.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return article
}
