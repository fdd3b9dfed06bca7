package ui

import (
	"fmt"
	"strings"

	"github.com/bennjii/reseda"
)

// StatusLine renders a connection snapshot as a single line.
func StatusLine(st reseda.ConnectionStatus) string {
	where := st.Server
	if st.Location != nil {
		where = st.Location.ID
		if st.Location.Country != "" {
			where += " (" + st.Location.Country + ")"
		}
	}

	var msg string
	switch st.State {
	case reseda.Connected:
		msg = SuccessMsg("connected")
	case reseda.Error:
		msg = ErrorMsg("error")
	case reseda.Disconnected:
		msg = InfoMsg("disconnected")
	default:
		msg = InfoMsg("%s", st.State)
	}
	if where != "" {
		msg += " " + Accent(where)
	}
	if m := strings.TrimSpace(st.Message); m != "" {
		msg += " " + Muted(m)
	}
	return msg
}

// StatusDetails renders the fields of a snapshot worth showing once a
// connection settles.
func StatusDetails(st reseda.ConnectionStatus) string {
	pairs := []Pair{
		KV("state", st.State.String()),
		KV("connection", st.ConnectionID),
	}
	if st.Config.Interface.PublicKey != "" {
		pairs = append(pairs, KV("public key", st.Config.Interface.PublicKey))
	}
	if len(st.Config.Interface.Address) > 0 {
		pairs = append(pairs, KV("address", strings.Join(st.Config.Interface.Address, ", ")))
	}
	for i, p := range st.Config.Peers {
		pairs = append(pairs, KV(fmt.Sprintf("peer %d", i+1), p.PublicKey+" @ "+p.Endpoint))
	}
	return KeyValues("  ", pairs...)
}
