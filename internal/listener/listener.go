package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"rfqdesk/internal/config"
	"rfqdesk/internal/connectors"
	gmailconnector "rfqdesk/internal/connectors/gmail"
	imapconnector "rfqdesk/internal/connectors/imap"
	"rfqdesk/internal/directory"
	"rfqdesk/internal/docai"
	"rfqdesk/internal/pipeline"
	"rfqdesk/internal/storage"
)

type Service struct {
	db  *storage.DB
	cfg config.Config
}

func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			fmt.Printf("listener cycle error: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	// The directory cache can change between cycles (a sync may run in
	// parallel), so the index is rebuilt per cycle.
	deps, err := s.buildDeps()
	if err != nil {
		return err
	}

	processor := pipeline.NewProcessingService(s.db, s.cfg, deps)
	processedMessages, processedRequests, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	if s.cfg.MailListenerAutoExport {
		if err := s.exportProcessed(provider); err != nil {
			return err
		}
	}

	fmt.Printf("listener cycle done provider=%s fetched=%d stored=%d processed=%d requests=%d\n",
		provider, fetchResult.Fetched, fetchResult.Stored, processedMessages, processedRequests)
	_ = ctx
	return nil
}

func (s *Service) buildDeps() (pipeline.Deps, error) {
	idx, err := directory.LoadIndex(s.db)
	if err != nil {
		return pipeline.Deps{}, err
	}
	deps := pipeline.Deps{Suppliers: idx, Brands: idx}
	if strings.TrimSpace(s.cfg.DocAIBaseURL) != "" {
		deps.Fallback = docai.NewClient(s.cfg)
	}
	return deps, nil
}

func (s *Service) exportProcessed(provider string) error {
	messages, err := s.db.ListMessagesByStatus("processed", 200)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if msg.Provider != provider {
			continue
		}
		ids, err := s.db.ListRequestIDsByMessage(msg.ID)
		if err != nil {
			return err
		}
		exported := 0
		for _, id := range ids {
			request, err := s.db.GetRequestByInternalID(id)
			if err != nil {
				return err
			}
			if request == nil {
				continue
			}
			outputPath := filepath.Join(s.cfg.OutputDir, "listener", id+".xlsx")
			if err := pipeline.ExportRequestToXLSX(*request, outputPath); err != nil {
				return err
			}
			exported++
		}
		if exported > 0 {
			_ = s.db.UpdateMessageStatus(msg.ID, "exported")
		}
	}
	return nil
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
