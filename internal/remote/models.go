package remote

// Friend is one relation as the directory reports it.
type Friend struct {
	ID         int64  `json:"friendId"`
	Unique     string `json:"fname"`
	Display    string `json:"fdisplay"`
	SleepCycle int    `json:"scycle"`
	Timezone   string `json:"timezone"`
	Mirror     bool   `json:"mirror"`
	Complete   bool   `json:"complete"`
}

// Invitations is the authoritative relation list of an account: confirmed
// friends, invitations it sent (rsvps) and invitations it received.
type Invitations struct {
	Friends []Friend `json:"friends"`
	RSVPs   []Friend `json:"rsvps"`
	Invites []Friend `json:"invites"`
}

// InviteRequest asks the service to connect with someone.
type InviteRequest struct {
	Unique  string `json:"fname"`
	Display string `json:"fdisplay"`
	Message string `json:"message"`
	Mirror  bool   `json:"mirror"`
}

// PromptRequest creates a prompt.
type PromptRequest struct {
	When       string `json:"when"`
	Timezone   string `json:"timezone"`
	TimeName   int    `json:"timename"`
	TimeAdj    int    `json:"timeadj"`
	SleepCycle int    `json:"scycle"`
	ReceiveID  int64  `json:"receiveId"`
	Units      int    `json:"units"`
	Period     int    `json:"period"`
	End        string `json:"end"`
	Recurs     int    `json:"recurs"`
	GroupID    int64  `json:"groupId,omitempty"`
	Message    string `json:"message"`
}

// PromptResponse carries the server-assigned id and delivery time.
type PromptResponse struct {
	NoteID   int64  `json:"noteId"`
	NoteTime string `json:"noteTime"`
}

// SnoozeRequest pushes an existing prompt to a later time.
type SnoozeRequest struct {
	When     string `json:"when"`
	Timezone string `json:"timezone"`
	SnoozeID int64  `json:"snoozeId"`
	SenderID int64  `json:"senderId"`
	Message  string `json:"message"`
}

// PingResponse is returned by the status endpoint.
type PingResponse struct {
	Version string `json:"version"`
}

// BaseCamp locates the service. It is published as a small JSON document
// so the host can move without a client release.
type BaseCamp struct {
	Host      string `json:"Host"`
	Path      string `json:"Path"`
	Parameter string `json:"Parameter"`
	Auth      string `json:"Auth"`
}
