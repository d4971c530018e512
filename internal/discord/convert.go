package discord

import (
	"cmp"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/aegistrate/internal/dispatch"
	"github.com/keshon/aegistrate/internal/registration"
	"github.com/keshon/aegistrate/pkg/cmd"
)

var kindToType = map[registration.OptionKind]discordgo.ApplicationCommandOptionType{
	registration.KindString:  discordgo.ApplicationCommandOptionString,
	registration.KindInteger: discordgo.ApplicationCommandOptionInteger,
	registration.KindBoolean: discordgo.ApplicationCommandOptionBoolean,
	registration.KindUser:    discordgo.ApplicationCommandOptionUser,
}

func kindOf(t discordgo.ApplicationCommandOptionType) registration.OptionKind {
	for k, v := range kindToType {
		if v == t {
			return k
		}
	}
	return registration.KindString
}

// applicationCommand renders a definition as a chat input command. Discord
// wants required options first.
func applicationCommand(def registration.Definition) *discordgo.ApplicationCommand {
	ac := &discordgo.ApplicationCommand{
		Type:        discordgo.ChatApplicationCommand,
		Name:        def.Name,
		Description: def.Description,
	}
	for _, o := range registration.WireOrder(def.Options) {
		opt := &discordgo.ApplicationCommandOption{
			Type:        kindToType[o.Kind],
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		}
		for _, c := range o.Choices {
			var value any = c.Value
			if o.Kind == registration.KindInteger {
				if n, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
					value = n
				}
			}
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: value})
		}
		ac.Options = append(ac.Options, opt)
	}
	return ac
}

// definition reads back the fields that take part in the definition hash.
func definition(ac *discordgo.ApplicationCommand) registration.Definition {
	def := registration.Definition{Name: ac.Name, Description: ac.Description}
	for _, o := range ac.Options {
		od := registration.OptionDefinition{
			Name:        o.Name,
			Description: o.Description,
			Kind:        kindOf(o.Type),
			Required:    o.Required,
		}
		for _, c := range o.Choices {
			od.Choices = append(od.Choices, registration.ChoiceDefinition{Name: c.Name, Value: choiceValue(c.Value)})
		}
		def.Options = append(def.Options, od)
	}
	return def
}

// choiceValue formats a choice value the way FromDescriptor writes it.
// Integer choices decode from JSON as float64.
func choiceValue(v any) string {
	switch v := v.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	}
	return fmt.Sprint(v)
}

// snapshot turns a remote command into its hashed form.
func snapshot(ac *discordgo.ApplicationCommand) registration.Snapshot {
	return registration.Snapshot{ID: ac.ID, Name: ac.Name, Hash: registration.Hash(definition(ac))}
}

// eventFromInteraction flattens a chat input interaction. Sub-commands are
// not used, so options are read one level deep.
func eventFromInteraction(i *discordgo.InteractionCreate) dispatch.Event {
	data := i.ApplicationCommandData()
	ev := dispatch.Event{
		CorrelationID: i.ID,
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Command:       data.Name,
		Args:          make(cmd.Args, len(data.Options)),
		Data:          i,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID = i.Member.User.ID
	case i.User != nil:
		ev.UserID = i.User.ID
	}

	for _, o := range data.Options {
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			ev.Args[o.Name] = o.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			ev.Args[o.Name] = o.IntValue()
		case discordgo.ApplicationCommandOptionBoolean:
			ev.Args[o.Name] = o.BoolValue()
		case discordgo.ApplicationCommandOptionUser:
			ev.Args[o.Name] = userRef(i, data.Resolved, o)
		default:
			ev.Args[o.Name] = o.Value
		}
	}
	return ev
}

func userRef(i *discordgo.InteractionCreate, resolved *discordgo.ApplicationCommandInteractionDataResolved, o *discordgo.ApplicationCommandInteractionDataOption) cmd.UserRef {
	id, _ := o.Value.(string)
	ref := cmd.UserRef{ID: id}
	if resolved == nil {
		return ref
	}
	if u := resolved.Users[id]; u != nil {
		ref.Username = u.Username
	}
	// Members are only resolved for users in the guild the interaction came from.
	ref.Member = i.GuildID != "" && resolved.Members[id] != nil
	return ref
}

// embed renders a response the way every bot reply looks.
func embed(r cmd.Response) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Description,
		Color:       cmp.Or(colorFor(r), EmbedColor),
	}
	for _, f := range r.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if r.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: r.Footer}
	}
	return e
}

func colorFor(r cmd.Response) int {
	if r.Error {
		return ErrorColor
	}
	return 0
}
