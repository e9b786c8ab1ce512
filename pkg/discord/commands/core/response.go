package core

import "github.com/bwmarrin/discordgo"

// InteractionAPI is the part of *discordgo.Session used to answer interactions.
type InteractionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Responder sends interaction responses.
type Responder struct {
	api InteractionAPI
}

// NewResponder wraps api.
func NewResponder(api InteractionAPI) *Responder {
	return &Responder{api: api}
}

func flagsFor(ephemeral bool) discordgo.MessageFlags {
	if ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// Respond sends a plain text response.
func (r *Responder) Respond(i *discordgo.InteractionCreate, content string, ephemeral bool) error {
	return r.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flagsFor(ephemeral),
		},
	})
}

// Ephemeral sends a text response only the invoker can see.
func (r *Responder) Ephemeral(i *discordgo.InteractionCreate, content string) error {
	return r.Respond(i, content, true)
}

// Error sends an ephemeral error response.
func (r *Responder) Error(i *discordgo.InteractionCreate, message string) error {
	return r.Respond(i, "❌ "+message, true)
}

// Embed sends an embed response with optional components.
func (r *Responder) Embed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) error {
	return r.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      flagsFor(ephemeral),
		},
	})
}

// Defer acknowledges the interaction; the answer follows through EditResponse or FollowUp.
func (r *Responder) Defer(i *discordgo.InteractionCreate, ephemeral bool) error {
	return r.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flagsFor(ephemeral)},
	})
}

// EditResponse replaces the content of the original response.
func (r *Responder) EditResponse(i *discordgo.InteractionCreate, content string) error {
	_, err := r.api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	return err
}

// EditResponseEmbed replaces the original response with an embed.
func (r *Responder) EditResponseEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	embeds := []*discordgo.MessageEmbed{embed}
	_, err := r.api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds})
	return err
}

// FollowUp posts an additional message for the interaction.
func (r *Responder) FollowUp(i *discordgo.InteractionCreate, content string, ephemeral bool) (*discordgo.Message, error) {
	return r.api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   flagsFor(ephemeral),
	})
}

// Autocomplete answers an autocomplete request.
func (r *Responder) Autocomplete(i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) error {
	return r.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}
