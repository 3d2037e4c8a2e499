package server

import (
	"net/http"
	"time"

	"thurman/crypto"
	"thurman/native/originators"
	"thurman/native/pool"
)

func (s *Server) listOperators(w http.ResponseWriter, r *http.Request) {
	ops := s.engine.Operators()
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"operators": out})
}

type addressBody struct {
	Address string `json:"address"`
}

func (s *Server) grantOperator(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body addressBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := parseAddress("address", body.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.GrantOperator(caller, addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) revokeOperator(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.RevokeOperator(caller, addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registryParam(r *http.Request) (*originators.Registry, error) {
	addr, err := addressParam(r, "registry")
	if err != nil {
		return nil, err
	}
	reg, ok := s.registries[addr]
	if !ok {
		return nil, pool.ErrRegistryNotFound
	}
	return reg, nil
}

type originatorResponse struct {
	Address      string    `json:"address"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registeredAt"`
}

func (s *Server) listOriginators(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registryParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := reg.Snapshot()
	out := make([]originatorResponse, 0, len(snap.Originators))
	for _, o := range snap.Originators {
		out = append(out, originatorResponse{
			Address:      o.Address.String(),
			Active:       o.Active,
			RegisteredAt: o.RegisteredAt.UTC(),
		})
	}
	accruers := make([]string, 0, len(snap.Accruers))
	for _, a := range snap.Accruers {
		accruers = append(accruers, a.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registry":    snap.Address.String(),
		"admin":       snap.Admin.String(),
		"originators": out,
		"accruers":    accruers,
	})
}

// registryWrite resolves the registry and caller, then applies fn to the
// address taken from the body (POST) or the {addr} path segment (DELETE).
func (s *Server) registryWrite(w http.ResponseWriter, r *http.Request, fromBody bool, fn func(reg *originators.Registry, caller, addr crypto.Address) error) {
	caller, err := callerOf(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reg, err := s.registryParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var addr crypto.Address
	if fromBody {
		var body addressBody
		if err := decode(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		addr, err = parseAddress("address", body.Address)
	} else {
		addr, err = addressParam(r, "addr")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := fn(reg, caller, addr); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerOriginator(w http.ResponseWriter, r *http.Request) {
	s.registryWrite(w, r, true, (*originators.Registry).RegisterOriginator)
}

func (s *Server) deactivateOriginator(w http.ResponseWriter, r *http.Request) {
	s.registryWrite(w, r, false, (*originators.Registry).DeactivateOriginator)
}

func (s *Server) grantAccruer(w http.ResponseWriter, r *http.Request) {
	s.registryWrite(w, r, true, (*originators.Registry).GrantAccruer)
}

func (s *Server) revokeAccruer(w http.ResponseWriter, r *http.Request) {
	s.registryWrite(w, r, false, (*originators.Registry).RevokeAccruer)
}
