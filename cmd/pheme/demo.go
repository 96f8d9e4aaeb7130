package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"pheme/auth"
	"pheme/domain"
	"pheme/feed"
	"pheme/repositories"
	"pheme/services"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type demoConfig struct {
	Enabled     bool   `envconfig:"DEMO_ENABLED" default:"true"`
	FeedAccount string `envconfig:"DEMO_FEED_ACCOUNT" default:"campus"`
	Pattern     string `envconfig:"DEMO_PATTERN" default:"exam"`
	// DEMO_COLOURS enables colorized step headers
	Colours bool `envconfig:"DEMO_COLOURS" default:"true"`
}

func loadDemoConfig() (demoConfig, error) {
	var cfg demoConfig
	err := envconfig.Process("", &cfg)
	return cfg, err
}

type demoUser struct {
	id       uuid.UUID
	username string
	hash     string
}

func newDemoUser(username, password string) (demoUser, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return demoUser{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return demoUser{}, err
	}
	return demoUser{id: uuid.New(), username: username, hash: hash}, nil
}

// runDemo registers two users, exchanges a direct message and a feed item
// then prints the resulting delivery journal.
func runDemo(ctx context.Context, log *slog.Logger, cfg demoConfig, mailbox services.IMailbox,
	source *feed.MemorySource, deliveries repositories.DeliveryRepository) error {
	step := func(name string) {
		header := fmt.Sprintf("  ====== %s ======", name)
		if cfg.Colours {
			header = color.New(color.BgBlack, color.FgGreen).Render(header)
		}
		fmt.Println(header)
	}

	alice, err := newDemoUser(fmt.Sprintf("alice-%d", time.Now().UnixNano()), "Rose-Garden-42")
	if err != nil {
		return err
	}
	bob, err := newDemoUser(fmt.Sprintf("bob-%d", time.Now().UnixNano()), "Blue-Harbour-77")
	if err != nil {
		return err
	}

	step("Register")
	for _, u := range []demoUser{alice, bob} {
		if !mailbox.RegisterUser(ctx, u.id, u.username, u.hash) {
			return fmt.Errorf("registration of %s refused", u.username)
		}
	}

	step("Subscribe")
	if !mailbox.SubscribePattern(ctx, bob.username, bob.hash, cfg.FeedAccount, cfg.Pattern) {
		return fmt.Errorf("subscription of %s to %s refused", bob.username, cfg.FeedAccount)
	}
	for _, text := range []string{"Exam schedule is out", "Cafeteria closed today"} {
		item := domain.FeedItem{Timestamp: time.Now().UTC(), Text: text}
		if err := source.Publish(cfg.FeedAccount, item); err != nil {
			return err
		}
	}

	step("Send")
	stranger := uuid.New()
	msg := domain.NewMessage(alice.id, []uuid.UUID{bob.id, stranger}, "Lunch at noon?", domain.DirectMessage)
	if !mailbox.Send(ctx, alice.username, alice.hash, msg) {
		return fmt.Errorf("message from %s refused", alice.username)
	}

	step("Receive")
	for _, m := range mailbox.AllRecent(ctx, bob.username, bob.hash) {
		fmt.Printf("%s [%s] %s\n", m.Timestamp.Format(time.TimeOnly), m.Type, m.Content)
	}
	peak, err := mailbox.PeakLoad(ctx, bob.username, bob.hash, time.Second)
	if err != nil {
		return err
	}
	log.Info("Demo mailbox drained", "username", bob.username, "peak_load", peak)

	step("Deliveries")
	delivered := mailbox.IsDeliveredAll(msg.ID, []uuid.UUID{bob.id, stranger})
	journal, err := deliveries.ListByMessage(msg.ID)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Receiver", "Status", "At", "Delivered"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	byReceiver := map[uuid.UUID]bool{bob.id: delivered[0], stranger: delivered[1]}
	for _, d := range journal {
		table.Append([]string{
			d.ReceiverID.String()[:8],
			d.Status,
			d.At.Format(time.TimeOnly),
			strconv.FormatBool(byReceiver[d.ReceiverID]),
		})
	}
	table.Render()
	return nil
}
