package realtime

import "github.com/gorilla/websocket"

// message is anything the event loop consumes.
type message interface{ isManagerMsg() }

type openRequest struct {
	name      string
	sessionID string
	spec      ChannelSpec
	reply     chan error
}

type closeRequest struct {
	name  string
	reply chan error
}

type stateRequest struct {
	name  string
	reply chan ChannelInfo
}

type task struct{ fn func() }

type dialed struct {
	ch   *channel
	gen  int
	conn *websocket.Conn
	err  error
}

type frameReceived struct {
	ch   *channel
	gen  int
	data []byte
}

type connLost struct {
	ch  *channel
	gen int
	err error
}

type redial struct {
	ch  *channel
	gen int
}

type resynced struct {
	ch    *channel
	gen   int
	apply func()
	err   error
}

func (openRequest) isManagerMsg()   {}
func (closeRequest) isManagerMsg()  {}
func (stateRequest) isManagerMsg()  {}
func (task) isManagerMsg()          {}
func (dialed) isManagerMsg()        {}
func (frameReceived) isManagerMsg() {}
func (connLost) isManagerMsg()      {}
func (redial) isManagerMsg()        {}
func (resynced) isManagerMsg()      {}
