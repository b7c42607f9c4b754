package models

type Table string

const (
	TableGuilds               Table = "guilds"
	TableInteractions         Table = "interactions"
	TableWelcomeSettings      Table = "welcome_settings"
	TableWelcomeTemplates     Table = "welcome_templates"
	TableWelcomeTemplateSeq   Table = "welcome_template_seq"
	TableWelcomeNotifications Table = "welcome_notifications"
	TableWelcomeGreeters      Table = "welcome_greeters"
	TableWelcomeGreetCounts   Table = "welcome_greet_counts"
)

type Mappable interface {
	Table() Table
	Map() map[string]any
}
