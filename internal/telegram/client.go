// Package telegram provides the channel message source: MTProto auth,
// channel resolution, history iteration and media download.
package telegram

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/sirupsen/logrus"

	"github.com/sylverboss/telegram-audio-transcriber/internal/transcription"
	"github.com/sylverboss/telegram-audio-transcriber/internal/types"
)

const historyPageSize = 100

// Client wraps a gotd MTProto client scoped to one channel.
type Client struct {
	phone      string
	password   string
	channelRef string

	client  *telegram.Client
	api     *tg.Client
	dl      *downloader.Downloader
	peer    *tg.InputPeerChannel
	channel types.Channel
	log     *logrus.Entry
}

// NewClient creates a Telegram client using a file-backed session so repeat
// runs do not re-prompt for a login code.
func NewClient(apiID int, apiHash, phone, password, channelRef, sessionFile string, log *logrus.Logger) *Client {
	tc := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
	})

	return &Client{
		phone:      phone,
		password:   password,
		channelRef: channelRef,
		client:     tc,
		log:        log.WithField("component", "telegram"),
	}
}

// Run connects, authenticates if necessary and invokes fn within the
// connection scope. The connection is released when Run returns, on every
// path.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			auth.Constant(c.phone, c.password, auth.CodeAuthenticatorFunc(promptCode)),
			auth.SendCodeOptions{},
		)
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("telegram auth: %w", err)
		}

		c.api = c.client.API()
		c.dl = downloader.NewDownloader()
		c.log.Info("telegram client connected")

		return fn(ctx)
	})
}

// promptCode asks for the login code on stdin during first-run auth.
func promptCode(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter the Telegram login code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// Channel resolves the configured channel once and caches the result.
func (c *Client) Channel(ctx context.Context) (types.Channel, error) {
	if c.peer != nil {
		return c.channel, nil
	}

	username := strings.TrimPrefix(c.channelRef, "https://t.me/")
	username = strings.TrimPrefix(username, "t.me/")
	username = strings.TrimPrefix(username, "@")

	resolved, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return types.Channel{}, fmt.Errorf("resolve channel %q: %w", c.channelRef, err)
	}

	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			c.peer = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
			c.channel = types.Channel{ID: ch.ID, Title: ch.Title}
			c.log.WithField("channel", ch.Title).Info("channel resolved")
			return c.channel, nil
		}
	}

	return types.Channel{}, fmt.Errorf("%q did not resolve to a channel", c.channelRef)
}

// IterAudioMessages walks the channel history newest-first and invokes fn
// for every audio-bearing message. Iteration errors are fatal to the run;
// errors inside fn belong to fn.
func (c *Client) IterAudioMessages(ctx context.Context, fn func(types.MediaItem) error) error {
	if _, err := c.Channel(ctx); err != nil {
		return err
	}

	fetch := func(ctx context.Context, offsetID int) (tg.MessagesMessagesClass, error) {
		return c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     c.peer,
			OffsetID: offsetID,
			Limit:    historyPageSize,
		})
	}

	return iterAudioHistory(ctx, fetch, fn)
}

// iterAudioHistory pages through history with fetch until an empty page.
// Every entry advances the offset, including service and empty messages;
// otherwise a trailing page holding no plain message would repeat forever.
func iterAudioHistory(
	ctx context.Context,
	fetch func(ctx context.Context, offsetID int) (tg.MessagesMessagesClass, error),
	fn func(types.MediaItem) error,
) error {
	offsetID := 0
	for {
		res, err := fetch(ctx, offsetID)
		if err != nil {
			return fmt.Errorf("fetch channel history: %w", err)
		}

		var batch []tg.MessageClass
		switch msgs := res.(type) {
		case *tg.MessagesChannelMessages:
			batch = msgs.Messages
		case *tg.MessagesMessagesSlice:
			batch = msgs.Messages
		case *tg.MessagesMessages:
			batch = msgs.Messages
		default:
			return fmt.Errorf("unexpected history response %T", res)
		}

		if len(batch) == 0 {
			return nil
		}

		for _, m := range batch {
			if id := m.GetID(); offsetID == 0 || id < offsetID {
				offsetID = id
			}

			msg, ok := m.(*tg.Message)
			if !ok {
				continue
			}

			item, ok := audioItem(msg)
			if !ok {
				continue
			}
			if err := fn(item); err != nil {
				return err
			}
		}
	}
}

// audioItem extracts a MediaItem from a message carrying an audio document.
func audioItem(msg *tg.Message) (types.MediaItem, bool) {
	media, ok := msg.GetMedia()
	if !ok {
		return types.MediaItem{}, false
	}

	mediaDoc, ok := media.(*tg.MessageMediaDocument)
	if !ok {
		return types.MediaItem{}, false
	}

	docClass, ok := mediaDoc.GetDocument()
	if !ok {
		return types.MediaItem{}, false
	}

	doc, ok := docClass.AsNotEmpty()
	if !ok {
		return types.MediaItem{}, false
	}

	var fileName string
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			fileName = fn.FileName
		}
	}

	if !transcription.IsAudio(doc.MimeType, fileName) {
		return types.MediaItem{}, false
	}

	return types.MediaItem{
		MessageID:  msg.ID,
		FileName:   fileName,
		MimeType:   doc.MimeType,
		Date:       time.Unix(int64(msg.Date), 0).UTC(),
		Size:       doc.Size,
		DocumentID: doc.ID,
		AccessHash: doc.AccessHash,
		FileRef:    doc.FileReference,
	}, true
}

// Download streams the item's document to path.
func (c *Client) Download(ctx context.Context, item types.MediaItem, path string) error {
	loc := &tg.InputDocumentFileLocation{
		ID:            item.DocumentID,
		AccessHash:    item.AccessHash,
		FileReference: item.FileRef,
	}

	if _, err := c.dl.Download(c.api, loc).ToPath(ctx, path); err != nil {
		return fmt.Errorf("download message %d: %w", item.MessageID, err)
	}

	return nil
}
