// Package provider injects proxy providers into a merged document.
//
// Providers come from clashctl's own configuration rather than from the
// merged documents. Each entry is written to the document's proxy-providers
// mapping after its wiring keys have been applied to proxy-groups and
// removed.
package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sskaje/clashctl/internal/tree"
)

// Keys of a provider entry.
const (
	KeyName           = "name"
	KeyType           = "provider-type"
	KeyAddToGroups    = "add-provider-to-proxy-group"
	KeyCreateGroup    = "create-proxy-group"
	KeyAddProxiesTo   = "add-proxies-to-proxy-group"
	KeyProxyGroups    = "proxy-groups"
	KeyProxyProviders = "proxy-providers"
	KeyUse            = "use"
	KeyProxies        = "proxies"
)

// SchemaError reports a provider entry that cannot be applied to the
// document.
type SchemaError struct {
	// Provider is the provider name, or its position when it has none.
	Provider string
	// Key is the missing or malformed key.
	Key    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Key, e.Reason)
}

// Expand applies providers to doc in order. Each provider entry is modified
// in place and ends up in doc's proxy-providers mapping.
func Expand(doc *tree.Mapping, providers []*tree.Mapping) error {
	for i, p := range providers {
		if err := expandOne(doc, i, p); err != nil {
			return err
		}
	}
	return nil
}

func expandOne(doc *tree.Mapping, index int, p *tree.Mapping) error {
	v, ok := p.Get(KeyName)
	if !ok {
		return &SchemaError{Provider: fmt.Sprintf("#%d", index), Key: KeyName, Reason: "missing"}
	}
	name, ok := tree.Text(v)
	if !ok || strings.TrimSpace(name) == "" {
		return &SchemaError{Provider: fmt.Sprintf("#%d", index), Key: KeyName, Reason: "must be a non-empty string"}
	}

	p.Delete(KeyType)

	if targets, ok := p.Get(KeyAddToGroups); ok {
		names, err := groupNames(name, KeyAddToGroups, targets)
		if err != nil {
			return err
		}
		groups, err := proxyGroups(doc, name, KeyAddToGroups)
		if err != nil {
			return err
		}
		for _, target := range names {
			group := findGroup(groups, target)
			if group == nil {
				slog.Warn("proxy group not found", "provider", name, "group", target)
				continue
			}
			appendUnique(group, KeyUse, name)
		}
		p.Delete(KeyAddToGroups)
	}

	if v, ok := p.Get(KeyCreateGroup); ok {
		newGroup, ok := v.(*tree.Mapping)
		if !ok {
			return &SchemaError{Provider: name, Key: KeyCreateGroup, Reason: "must be a mapping"}
		}
		groups, err := proxyGroups(doc, name, KeyCreateGroup)
		if err != nil {
			return err
		}
		newGroup.Set(KeyUse, tree.NewSequence(tree.String(name)))
		groups.Append(newGroup)

		if targets, ok := p.Get(KeyAddProxiesTo); ok {
			groupName, ok := groupNameOf(newGroup)
			if !ok {
				return &SchemaError{Provider: name, Key: KeyCreateGroup + "." + KeyName, Reason: "missing"}
			}
			names, err := groupNames(name, KeyAddProxiesTo, targets)
			if err != nil {
				return err
			}
			for _, target := range names {
				group := findGroup(groups, target)
				if group == nil {
					slog.Warn("proxy group not found", "provider", name, "group", target)
					continue
				}
				appendUnique(group, KeyProxies, groupName)
				appendUnique(group, KeyUse, name)
			}
		}
		p.Delete(KeyCreateGroup)
		p.Delete(KeyAddProxiesTo)
	} else if _, ok := p.Get(KeyAddProxiesTo); ok {
		slog.Warn("ignoring "+KeyAddProxiesTo+" without "+KeyCreateGroup, "provider", name)
		p.Delete(KeyAddProxiesTo)
	}

	providers, ok := doc.Get(KeyProxyProviders)
	if !ok {
		providers = tree.NewMapping()
		doc.Set(KeyProxyProviders, providers)
	}
	pm, ok := providers.(*tree.Mapping)
	if !ok {
		return &SchemaError{Provider: name, Key: KeyProxyProviders, Reason: "document value is not a mapping"}
	}
	pm.Set(name, p)
	slog.Debug("added proxy provider", "provider", name)
	return nil
}

func proxyGroups(doc *tree.Mapping, provider, key string) (*tree.Sequence, error) {
	groups, ok := doc.Sequence(KeyProxyGroups)
	if !ok {
		return nil, &SchemaError{
			Provider: provider,
			Key:      key,
			Reason:   "document has no " + KeyProxyGroups + " list",
		}
	}
	return groups, nil
}

func groupNames(provider, key string, v tree.Node) ([]string, error) {
	seq, ok := v.(*tree.Sequence)
	if !ok {
		return nil, &SchemaError{Provider: provider, Key: key, Reason: "must be a list of group names"}
	}
	names := make([]string, 0, seq.Len())
	for _, item := range seq.Items {
		s, ok := item.(tree.Scalar)
		if !ok {
			return nil, &SchemaError{Provider: provider, Key: key, Reason: "must be a list of group names"}
		}
		names = append(names, strings.TrimSpace(s.Value))
	}
	return names, nil
}

func groupNameOf(group *tree.Mapping) (string, bool) {
	v, ok := group.Get(KeyName)
	if !ok {
		return "", false
	}
	s, ok := v.(tree.Scalar)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// findGroup returns the first group whose trimmed name equals name.
func findGroup(groups *tree.Sequence, name string) *tree.Mapping {
	for _, item := range groups.Items {
		group, ok := item.(*tree.Mapping)
		if !ok {
			continue
		}
		if n, ok := groupNameOf(group); ok && strings.TrimSpace(n) == name {
			return group
		}
	}
	return nil
}

// appendUnique adds value to the list under key unless already present.
func appendUnique(group *tree.Mapping, key, value string) {
	list, ok := group.Sequence(key)
	if !ok {
		list = tree.NewSequence()
		group.Set(key, list)
	}
	for _, item := range list.Items {
		if s, ok := item.(tree.Scalar); ok && s.Value == value {
			return
		}
	}
	list.Append(tree.String(value))
}
