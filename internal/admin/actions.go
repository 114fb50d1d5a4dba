package admin

// Callback namespace for the admin panel. Button data is packed as
// "adm:<action>:<payload>" and routed through one exhaustive switch;
// the payload carries the event date where one is needed.
const callbackNS = "adm"

type action string

const (
	actMenu          action = "menu"
	actSubscribers   action = "subs"
	actEvents        action = "events"
	actAdd           action = "add"
	actDelete        action = "del"
	actDeletePick    action = "pick"
	actDeleteConfirm action = "delok"
	actTest          action = "test"
)
