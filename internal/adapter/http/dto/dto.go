package dto

// CommandRequest is one chat command forwarded by the gateway.
type CommandRequest struct {
	UserID   string `json:"user_id" binding:"required,max=64,safe_id"`
	Username string `json:"username" binding:"max=64"`
	Content  string `json:"content" binding:"required,max=512"`
}

// CommandResponse carries the replies that were also delivered through the notifier.
type CommandResponse struct {
	UserID  string   `json:"user_id"`
	Replies []string `json:"replies"`
}
