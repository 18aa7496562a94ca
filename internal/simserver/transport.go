package simserver

import (
	"net/http"
)

// Transport returns an http.RoundTripper that serves requests with the
// server's fiber app in process, without a listener. Any request host is
// accepted.
func (s *Server) Transport() http.RoundTripper {
	return roundTripper{s: s}
}

type roundTripper struct {
	s *Server
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.s.app.Test(req.Clone(req.Context()), -1)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}
