package spec

import "encoding/json"

// resolvedSourceJSON is the stable tagged-union wire shape for ResolvedSource.
type resolvedSourceJSON struct {
	Kind         SourceKind `json:"kind"`
	RegistryName string     `json:"registry_name,omitempty"`
	RegistryURL  string     `json:"registry_index_url,omitempty"`
	Forge        ForgeKind  `json:"forge,omitempty"`
	Host         string     `json:"host,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Repo         string     `json:"repo,omitempty"`
	GitURL       string     `json:"git_url,omitempty"`
	Commit       string     `json:"commit,omitempty"`
	LocalPath    string     `json:"local_path,omitempty"`
}

func (s ResolvedSource) MarshalJSON() ([]byte, error) {
	w := resolvedSourceJSON{
		Kind:      s.Kind,
		GitURL:    s.GitURL,
		Commit:    s.Commit,
		LocalPath: s.LocalPath,
	}
	if s.Kind == Registry {
		w.RegistryName = s.Registry.Named
		w.RegistryURL = s.Registry.IndexURL
	}
	if s.Kind == Forge {
		w.Forge = s.Forge.Forge
		w.Host = s.Forge.Host
		w.Owner = s.Forge.Owner
		w.Repo = s.Forge.Repo
	}
	return json.Marshal(w)
}

func (s *ResolvedSource) UnmarshalJSON(b []byte) error {
	var w resolvedSourceJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = ResolvedSource{
		Kind:      w.Kind,
		GitURL:    w.GitURL,
		Commit:    w.Commit,
		LocalPath: w.LocalPath,
	}
	if w.Kind == Registry {
		s.Registry = RegistryRef{Named: w.RegistryName, IndexURL: w.RegistryURL}
	}
	if w.Kind == Forge {
		s.Forge = ForgeRef{Forge: w.Forge, Host: w.Host, Owner: w.Owner, Repo: w.Repo}
	}
	return nil
}

// resolvedCrateJSON backs ResolvedCrate's JSON encoding for the resolution-cache entry
// shape: {"value": ResolvedCrate, "cached_at": ...}.
type resolvedCrateJSON struct {
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Source  ResolvedSource `json:"source"`
}

func (r ResolvedCrate) MarshalJSON() ([]byte, error) {
	return json.Marshal(resolvedCrateJSON{Name: r.Name, Version: r.Version, Source: r.Source})
}

func (r *ResolvedCrate) UnmarshalJSON(b []byte) error {
	var w resolvedCrateJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	r.Name, r.Version, r.Source = w.Name, w.Version, w.Source
	return nil
}
