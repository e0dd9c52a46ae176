// Package docs publishes transcriptions to per-channel Google Docs.
package docs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const documentMimeType = "application/vnd.google-apps.document"

// Publisher appends transcription blocks to a "<channel> Transcriptions"
// Google Doc, creating the document on first use. Document IDs are cached
// for the rest of the run so a channel never gets two documents.
type Publisher struct {
	drive  *drive.Service
	docs   *docs.Service
	docIDs map[string]string
	log    *logrus.Entry
}

// NewPublisher builds Drive and Docs services from a service account
// credentials file.
func NewPublisher(ctx context.Context, credentialsFile string, log *logrus.Logger) (*Publisher, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(b, docs.DocumentsScope, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	client := jwtConfig.Client(ctx)

	driveSrv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create Drive service: %w", err)
	}

	docsSrv, err := docs.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create Docs service: %w", err)
	}

	return &Publisher{
		drive:  driveSrv,
		docs:   docsSrv,
		docIDs: make(map[string]string),
		log:    log.WithField("component", "publisher"),
	}, nil
}

// Publish appends a formatted transcription block for itemName to the
// channel's document and returns the document ID.
func (p *Publisher) Publish(ctx context.Context, channelName, itemName, text string) (string, error) {
	docID, err := p.ensureDocument(ctx, channelName)
	if err != nil {
		return "", err
	}

	block := fmt.Sprintf("## %s ##\n\n%s\n\n%s\n\n", itemName, text, strings.Repeat("=", 80))

	// New blocks go in at the document start, so the doc reads
	// most-recent-first.
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{
			{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: 1},
					Text:     block,
				},
			},
		},
	}

	if _, err := p.docs.Documents.BatchUpdate(docID, req).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("append to document %s: %w", docID, err)
	}

	p.log.WithFields(logrus.Fields{
		"document_id": docID,
		"item":        itemName,
	}).Info("transcription published")

	return docID, nil
}

// ensureDocument finds or creates the channel's document, at most once per
// channel per run.
func (p *Publisher) ensureDocument(ctx context.Context, channelName string) (string, error) {
	if docID, ok := p.docIDs[channelName]; ok {
		return docID, nil
	}

	docName := channelName + " Transcriptions"
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false",
		strings.ReplaceAll(docName, "'", `\'`), documentMimeType)

	r, err := p.drive.Files.List().Q(query).Spaces("drive").
		Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search for document: %w", err)
	}

	var docID string
	if len(r.Files) > 0 {
		docID = r.Files[0].Id
		p.log.WithField("document_id", docID).Info("using existing document")
	} else {
		file, err := p.drive.Files.Create(&drive.File{
			Name:     docName,
			MimeType: documentMimeType,
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}
		docID = file.Id
		p.log.WithField("document_id", docID).Info("created new document")
	}

	p.docIDs[channelName] = docID
	return docID, nil
}
