package constants

// Control requests understood by the daemon socket.
const (
	CommandStart      = "start"
	CommandPause      = "pause"
	CommandResume     = "resume"
	CommandCancel     = "cancel"
	CommandStatus     = "status"
	CommandQueue      = "queue"
	CommandClearQueue = "clear_queue"
	CommandQueueList  = "queue_list"
	CommandGetConfig  = "get_config"
	CommandSetConfig  = "set_config"
)
