package conversation

// Status is the outcome reported back to the channel for one delivery.
type Status string

const (
	StatusChannelDisabled    Status = "channel_disabled"
	StatusBotDisabled        Status = "bot_disabled"
	StatusNoContact          Status = "no_contact"
	StatusHumanMode          Status = "human_mode"
	StatusTransferredToHuman Status = "transferred_to_human"
	StatusSuccess            Status = "success"
	StatusError              Status = "error"
)
