package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/restream-tools/restreamctl/internal/restream"
)

// DoProfile prints the authenticated account.
func DoProfile(ctx context.Context, client *restream.Client) error {
	profile, err := client.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ID:       %d\n", profile.ID)
	fmt.Printf("Username: %s\n", profile.Username)
	fmt.Printf("Email:    %s\n", profile.Email)
	return nil
}

// DoPlatforms prints the public platform directory.
func DoPlatforms(ctx context.Context, client *restream.Client) error {
	platforms, err := client.Platforms(ctx)
	if err != nil {
		return err
	}
	for _, p := range platforms {
		fmt.Printf("%6d  %-24s %s\n", p.ID, p.Name, p.URL)
	}
	return nil
}

// DoIngestServers prints the public ingest server directory.
func DoIngestServers(ctx context.Context, client *restream.Client) error {
	servers, err := client.IngestServers(ctx)
	if err != nil {
		return err
	}
	for _, s := range servers {
		fmt.Printf("%6d  %-28s %s\n", s.ID, s.Name, s.RTMPURL)
	}
	return nil
}

// DoChannels prints the account's channel list.
func DoChannels(ctx context.Context, client *restream.Client) error {
	channels, err := client.ListChannels(ctx)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		fmt.Printf("%10d  %-3s  platform=%-3d %-24s %s\n",
			ch.ID, onOff(ch.Enabled), ch.StreamingPlatformID, ch.DisplayName, ch.URL)
	}
	return nil
}

// DoChannel prints one channel in detail.
func DoChannel(ctx context.Context, client *restream.Client, id int64) error {
	ch, err := client.GetChannel(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("ID:           %d\n", ch.ID)
	fmt.Printf("Name:         %s\n", ch.DisplayName)
	fmt.Printf("Active:       %s\n", onOff(ch.Active))
	fmt.Printf("Service:      %d\n", ch.ServiceID)
	fmt.Printf("Identifier:   %s\n", ch.ChannelIdentifier)
	fmt.Printf("URL:          %s\n", ch.ChannelURL)
	if ch.EventURL != nil {
		fmt.Printf("Event URL:    %s\n", *ch.EventURL)
	}
	return nil
}

// DoSetChannelActive toggles a channel, spec is "<id>=on" or "<id>=off".
func DoSetChannelActive(ctx context.Context, client *restream.Client, spec string) error {
	id, value, err := splitAssignment(spec)
	if err != nil {
		return err
	}
	active, err := parseOnOff(value)
	if err != nil {
		return err
	}
	if err = client.SetChannelActive(ctx, id, active); err != nil {
		return err
	}
	fmt.Printf("Channel %d is now %s\n", id, onOff(active))
	return nil
}

// DoChannelMeta prints a channel's stream title and description.
func DoChannelMeta(ctx context.Context, client *restream.Client, id int64) error {
	meta, err := client.GetChannelMeta(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Title:       %s\n", meta.Title)
	if meta.Description != "" {
		fmt.Printf("Description: %s\n", meta.Description)
	}
	return nil
}

// DoSetChannelTitle updates a channel's stream title, spec is "<id>=<title>".
func DoSetChannelTitle(ctx context.Context, client *restream.Client, spec string) error {
	id, title, err := splitAssignment(spec)
	if err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("empty title in %q", spec)
	}
	if err = client.UpdateChannelMeta(ctx, id, title, ""); err != nil {
		return err
	}
	fmt.Printf("Channel %d title updated\n", id)
	return nil
}

// DoEvent prints one stream event in detail.
func DoEvent(ctx context.Context, client *restream.Client, id string) error {
	ev, err := client.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	printEvent(ev)
	return nil
}

// DoEvents prints the requested event list: upcoming, in-progress, or
// history (paged).
func DoEvents(ctx context.Context, client *restream.Client, which string, page, limit int) error {
	switch which {
	case "upcoming":
		events, err := client.UpcomingEvents(ctx)
		if err != nil {
			return err
		}
		printEventLines(events)
	case "in-progress":
		events, err := client.InProgressEvents(ctx)
		if err != nil {
			return err
		}
		printEventLines(events)
	case "history":
		history, err := client.EventsHistory(ctx, page, limit)
		if err != nil {
			return err
		}
		printEventLines(history.Items)
		fmt.Printf("page %d of %d\n", history.Pagination.Page, history.Pagination.PagesTotal)
	default:
		return fmt.Errorf("unknown events list %q (want upcoming, in-progress, or history)", which)
	}
	return nil
}

// DoStreamKey prints the account's primary stream key.
func DoStreamKey(ctx context.Context, client *restream.Client) error {
	key, err := client.StreamKey(ctx)
	if err != nil {
		return err
	}
	fmt.Println(key.StreamKey)
	return nil
}

// DoEventStreamKey prints the stream key of one event.
func DoEventStreamKey(ctx context.Context, client *restream.Client, eventID string) error {
	key, err := client.EventStreamKey(ctx, eventID)
	if err != nil {
		return err
	}
	fmt.Println(key.StreamKey)
	return nil
}

func printEvent(ev *restream.StreamEvent) {
	fmt.Printf("ID:           %s\n", ev.ID)
	fmt.Printf("Title:        %s\n", ev.Title)
	fmt.Printf("Status:       %s\n", ev.Status)
	if ev.Description != "" {
		fmt.Printf("Description:  %s\n", ev.Description)
	}
	fmt.Printf("Scheduled:    %s\n", eventTime(ev.ScheduledFor))
	fmt.Printf("Started:      %s\n", eventTime(ev.StartedAt))
	fmt.Printf("Finished:     %s\n", eventTime(ev.FinishedAt))
	for _, dst := range ev.Destinations {
		fmt.Printf("Destination:  channel=%d platform=%d\n", dst.ChannelID, dst.StreamingPlatformID)
	}
}

func printEventLines(events []restream.StreamEvent) {
	for _, ev := range events {
		fmt.Printf("%s  %-11s %-20s %s\n", ev.ID, ev.Status, eventTime(ev.ScheduledFor), ev.Title)
	}
}

// eventTime renders an optional unix timestamp, "-" when unset.
func eventTime(ts *int64) string {
	if ts == nil || *ts == 0 {
		return "-"
	}
	return time.Unix(*ts, 0).Local().Format("2006-01-02 15:04:05")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// splitAssignment parses "<channel-id>=<value>" flag arguments.
func splitAssignment(spec string) (int64, string, error) {
	idPart, value, ok := strings.Cut(spec, "=")
	if !ok {
		return 0, "", fmt.Errorf("expected <channel-id>=<value>, got %q", spec)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid channel id in %q: %w", spec, err)
	}
	return id, value, nil
}

func parseOnOff(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid channel state %q (want on or off)", value)
}
