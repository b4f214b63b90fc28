package oidc

import "encoding/json"

// DiscoveryDocument is the OIDC provider metadata from
// /.well-known/openid-configuration. Fields beyond the four the service uses
// are retained in Extra.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JwksURI               string `json:"jwks_uri"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (d *DiscoveryDocument) UnmarshalJSON(data []byte) error {
	type alias DiscoveryDocument
	var doc alias
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	delete(all, "issuer")
	delete(all, "authorization_endpoint")
	delete(all, "token_endpoint")
	delete(all, "jwks_uri")
	doc.Extra = all

	*d = DiscoveryDocument(doc)
	return nil
}

func (d DiscoveryDocument) MarshalJSON() ([]byte, error) {
	all := make(map[string]json.RawMessage, len(d.Extra)+4)
	for k, v := range d.Extra {
		all[k] = v
	}
	for k, v := range map[string]string{
		"issuer":                 d.Issuer,
		"authorization_endpoint": d.AuthorizationEndpoint,
		"token_endpoint":         d.TokenEndpoint,
		"jwks_uri":               d.JwksURI,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		all[k] = raw
	}
	return json.Marshal(all)
}
