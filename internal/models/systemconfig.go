package models

import "time"

// System config keys managed through the admin panel.
const (
	ConfigSuccessMessage      = "success_message"
	ConfigWhatsappMessage     = "whatsapp_message"
	ConfigSchedulingStartDate = "scheduling_start_date"
	ConfigSchedulingEndDate   = "scheduling_end_date"
)

// SystemConfig is a key/value setting editable by admins.
type SystemConfig struct {
	ID        string    `db:"id" json:"id"`
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
