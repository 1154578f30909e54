package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"

	"github.com/AreaLayer/daisy/internal/nips"
	"github.com/AreaLayer/daisy/internal/nostr"
	"github.com/AreaLayer/daisy/internal/query"
	"github.com/AreaLayer/daisy/internal/types"
)

var limitFlag = &cli.IntFlag{
	Name:    "limit",
	Aliases: []string{"l"},
	Usage:   "maximum number of events to collect (0 uses the configured limit)",
}

var secFlag = &cli.StringFlag{
	Name:     "sec",
	Usage:    "secret key to sign with, hex or nsec",
	EnvVars:  []string{"DAISY_SECRET_KEY"},
	Required: true,
}

// hexArgs converts every argument to hex, accepting bech32 with prefix.
func hexArgs(c *cli.Context, prefix string) ([]string, error) {
	if c.NArg() == 0 {
		return nil, fmt.Errorf("missing argument")
	}
	out := make([]string, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		h, err := nips.ToHex(arg, prefix)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func signerFrom(c *cli.Context) (nostr.Signer, error) {
	sec, err := nips.ToHex(c.String("sec"), nips.PrefixSecret)
	if err != nil {
		return nil, err
	}
	signer, err := nostr.NewKeySigner(sec)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

var feed = &cli.Command{
	Name:      "feed",
	Usage:     "fetch notes and reposts by authors with related events and profiles",
	ArgsUsage: "<pubkey or npub>...",
	Flags:     []cli.Flag{limitFlag},
	Action: func(c *cli.Context) error {
		authors, err := hexArgs(c, nips.PrefixPubkey)
		if err != nil {
			return err
		}
		return printJSON(newClient(c).FetchEventsForAuthors(c.Context, authors, c.Int("limit")))
	},
}

var mentions = &cli.Command{
	Name:      "mentions",
	Usage:     "fetch notes and reposts tagging a pubkey",
	ArgsUsage: "<pubkey or npub>",
	Flags:     []cli.Flag{limitFlag},
	Action: func(c *cli.Context) error {
		pubkeys, err := hexArgs(c, nips.PrefixPubkey)
		if err != nil {
			return err
		}
		return printJSON(newClient(c).FetchEventsMentioning(c.Context, pubkeys[0], c.Int("limit")))
	},
}

var profile = &cli.Command{
	Name:      "profile",
	Usage:     "fetch profile metadata and contact list",
	ArgsUsage: "<pubkey or npub>",
	Action: func(c *cli.Context) error {
		pubkeys, err := hexArgs(c, nips.PrefixPubkey)
		if err != nil {
			return err
		}
		return printJSON(newClient(c).FetchProfile(c.Context, pubkeys[0]))
	},
}

var profiles = &cli.Command{
	Name:      "profiles",
	Usage:     "fetch profile metadata for several pubkeys in one batch",
	ArgsUsage: "<pubkey or npub>...",
	Action: func(c *cli.Context) error {
		pubkeys, err := hexArgs(c, nips.PrefixPubkey)
		if err != nil {
			return err
		}
		return printJSON(newClient(c).FetchProfiles(c.Context, pubkeys))
	},
}

var thread = &cli.Command{
	Name:      "thread",
	Usage:     "fetch replies to events with related events and profiles",
	ArgsUsage: "<event id or note>...",
	Action: func(c *cli.Context) error {
		ids, err := hexArgs(c, nips.PrefixNote)
		if err != nil {
			return err
		}
		return printJSON(newClient(c).FetchThread(c.Context, ids))
	},
}

var req = &cli.Command{
	Name:  "req",
	Usage: "run a raw filter across relays and print the merged events",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "id", Aliases: []string{"i"}},
		&cli.StringSliceFlag{Name: "author", Aliases: []string{"a"}},
		&cli.IntSliceFlag{Name: "kind", Aliases: []string{"k"}},
		&cli.StringSliceFlag{Name: "e", Usage: "#e tag value"},
		&cli.StringSliceFlag{Name: "p", Usage: "#p tag value"},
		&cli.Int64Flag{Name: "since", Aliases: []string{"s"}},
		&cli.Int64Flag{Name: "until", Aliases: []string{"u"}},
		limitFlag,
		&cli.BoolFlag{Name: "one", Usage: "stop at the first event"},
	},
	Action: func(c *cli.Context) error {
		filter := types.Filter{
			IDs:     c.StringSlice("id"),
			Authors: c.StringSlice("author"),
			Kinds:   c.IntSlice("kind"),
			Limit:   c.Int("limit"),
		}
		if e := c.StringSlice("e"); len(e) > 0 {
			filter = filter.ETags(e...)
		}
		if p := c.StringSlice("p"); len(p) > 0 {
			filter = filter.PTags(p...)
		}
		if c.IsSet("since") {
			v := c.Int64("since")
			filter.Since = &v
		}
		if c.IsSet("until") {
			v := c.Int64("until")
			filter.Until = &v
		}

		client := newClient(c)
		if c.Bool("one") {
			evt, ok := client.CollectOne(c.Context, filter)
			if !ok {
				return fmt.Errorf("no event found")
			}
			return printJSON(evt)
		}
		return printJSON(client.Collect(c.Context, filter))
	},
}

var publish = &cli.Command{
	Name:      "publish",
	Usage:     "sign and publish an event, succeeding on the first relay OK",
	ArgsUsage: "<content>",
	Flags: []cli.Flag{
		secFlag,
		&cli.IntFlag{Name: "kind", Aliases: []string{"k"}, Value: types.KindNote},
		&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "tag as name=value[;value...]"},
	},
	Action: func(c *cli.Context) error {
		signer, err := signerFrom(c)
		if err != nil {
			return err
		}
		var tags [][]string
		for _, t := range c.StringSlice("tag") {
			name, values, ok := strings.Cut(t, "=")
			if !ok || name == "" {
				return fmt.Errorf("invalid tag %q", t)
			}
			tags = append(tags, append([]string{name}, strings.Split(values, ";")...))
		}
		evt, ok := newClient(c).Publish(c.Context, signer, c.Int("kind"), strings.Join(c.Args().Slice(), " "), tags)
		if !ok {
			return fmt.Errorf("no relay accepted the event")
		}
		return printJSON(evt)
	},
}

var keygen = &cli.Command{
	Name:  "keygen",
	Usage: "generate a new key pair",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "qr", Usage: "also write the npub as a PNG QR code to this file"},
	},
	Action: func(c *cli.Context) error {
		signer, err := nostr.GenerateKeySigner()
		if err != nil {
			return err
		}
		npub, err := nips.EncodePubkey(signer.PublicKey())
		if err != nil {
			return err
		}
		nsec, err := nips.Encode(nips.PrefixSecret, signer.SecretKey())
		if err != nil {
			return err
		}
		if path := c.Path("qr"); path != "" {
			png, err := qrcode.Encode("nostr:"+npub, qrcode.Medium, 256)
			if err != nil {
				return fmt.Errorf("encode qr: %w", err)
			}
			if err := os.WriteFile(path, png, 0o644); err != nil {
				return err
			}
		}
		return printJSON(map[string]string{
			"pubkey": signer.PublicKey(),
			"npub":   npub,
			"nsec":   nsec,
		})
	},
}

// fetchTarget looks up a single event by id for react and repost.
func fetchTarget(c *cli.Context, client interface {
	CollectOne(context.Context, types.Filter) (types.Event, bool)
}) (types.Event, error) {
	ids, err := hexArgs(c, nips.PrefixNote)
	if err != nil {
		return types.Event{}, err
	}
	target, ok := client.CollectOne(c.Context, types.Filter{IDs: ids[:1]})
	if !ok {
		return types.Event{}, fmt.Errorf("event %s not found", nostr.ShortID(ids[0]))
	}
	return target, nil
}

var react = &cli.Command{
	Name:      "react",
	Usage:     "react to an event",
	ArgsUsage: "<event id or note>",
	Flags: []cli.Flag{
		secFlag,
		&cli.StringFlag{Name: "reaction", Value: "+"},
	},
	Action: func(c *cli.Context) error {
		signer, err := signerFrom(c)
		if err != nil {
			return err
		}
		client := newClient(c)
		target, err := fetchTarget(c, client)
		if err != nil {
			return err
		}
		evt, ok := client.React(c.Context, signer, target, c.String("reaction"))
		if !ok {
			return fmt.Errorf("no relay accepted the reaction")
		}
		return printJSON(evt)
	},
}

var repost = &cli.Command{
	Name:      "repost",
	Usage:     "repost an event",
	ArgsUsage: "<event id or note>",
	Flags:     []cli.Flag{secFlag},
	Action: func(c *cli.Context) error {
		signer, err := signerFrom(c)
		if err != nil {
			return err
		}
		client := newClient(c)
		target, err := fetchTarget(c, client)
		if err != nil {
			return err
		}
		evt, ok := client.Repost(c.Context, signer, target)
		if !ok {
			return fmt.Errorf("no relay accepted the repost")
		}
		return printJSON(evt)
	},
}

var follow = &cli.Command{
	Name:      "follow",
	Usage:     "follow a pubkey, or unfollow it if already followed",
	ArgsUsage: "<pubkey or npub>",
	Flags: []cli.Flag{
		secFlag,
		&cli.BoolFlag{
			Name:  "create",
			Usage: "start a new contact list when none is found",
		},
	},
	Action: func(c *cli.Context) error {
		signer, err := signerFrom(c)
		if err != nil {
			return err
		}
		pubkeys, err := hexArgs(c, nips.PrefixPubkey)
		if err != nil {
			return err
		}
		evt, err := newClient(c).Follow(c.Context, signer, pubkeys[0], c.Bool("create"))
		if errors.Is(err, query.ErrNoContactList) {
			return fmt.Errorf("%w; pass --create to start a new list", err)
		}
		if err != nil {
			return err
		}
		return printJSON(evt)
	},
}
