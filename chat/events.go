package chat

// Event is one inbound relay event. The set is closed: only the types in this
// file implement it.
type Event interface {
	isEvent()
}

// CustomerConnected binds a new customer transport to a session, resolving
// by id first and email second.
type CustomerConnected struct {
	Conn      Conn
	SessionID string
	Name      string
	Email     string
}

type AdminConnected struct {
	Conn Conn
}

type CustomerMessage struct {
	Conn      Conn // may be nil for messages that did not arrive over a live connection
	SessionID string
	Name      string
	Email     string
	Body      string
}

// AdminMessage is a reply targeted at SessionID.
type AdminMessage struct {
	Conn      Conn
	SessionID string
	Body      string
}

type ConnectionClosed struct {
	Conn Conn
}

func (CustomerConnected) isEvent() {}
func (AdminConnected) isEvent()    {}
func (CustomerMessage) isEvent()   {}
func (AdminMessage) isEvent()      {}
func (ConnectionClosed) isEvent()  {}
