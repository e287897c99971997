package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"staybot/internal/domain"
)

// catalogFile is the YAML shape of the property catalog on disk.
type catalogFile struct {
	Properties []domain.PropertyOffer `yaml:"properties"`
	Hosts      []domain.Host          `yaml:"hosts"`
}

// YAMLCatalog implements domain.Catalog from a YAML file loaded once at
// startup. Lookups are read-only after load.
type YAMLCatalog struct {
	properties map[string]domain.PropertyOffer
	hosts      map[string]domain.Host
	order      []string
}

// LoadCatalog reads and validates the property catalog.
func LoadCatalog(path string) (*YAMLCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read catalog file %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*YAMLCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse catalog: %w", err)
	}

	c := &YAMLCatalog{
		properties: make(map[string]domain.PropertyOffer, len(file.Properties)),
		hosts:      make(map[string]domain.Host, len(file.Hosts)),
	}

	for _, h := range file.Hosts {
		if h.ID == "" {
			return nil, fmt.Errorf("catalog: host with empty id")
		}
		if _, dup := c.hosts[h.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate host id %q", h.ID)
		}
		c.hosts[h.ID] = h
	}

	for _, p := range file.Properties {
		if err := validateProperty(p); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if _, dup := c.properties[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate property id %q", p.ID)
		}
		if _, ok := c.hosts[p.HostID]; !ok {
			return nil, fmt.Errorf("catalog: property %q references unknown host %q", p.ID, p.HostID)
		}
		c.properties[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	if len(c.properties) == 0 {
		return nil, fmt.Errorf("catalog: no properties defined")
	}
	return c, nil
}

func validateProperty(p domain.PropertyOffer) error {
	if p.ID == "" {
		return fmt.Errorf("property with empty id")
	}
	if p.BasePrice <= 0 {
		return fmt.Errorf("property %q: base_price must be > 0", p.ID)
	}
	if p.MinPrice <= 0 || p.MinPrice > p.BasePrice {
		return fmt.Errorf("property %q: min_price must be in (0, base_price]", p.ID)
	}
	if p.MaxPrice != 0 && p.MaxPrice < p.BasePrice {
		return fmt.Errorf("property %q: max_price must be >= base_price", p.ID)
	}
	if p.MaxGuests < 1 {
		return fmt.Errorf("property %q: max_guests must be >= 1", p.ID)
	}
	return nil
}

func (c *YAMLCatalog) Property(id string) (*domain.PropertyOffer, error) {
	p, ok := c.properties[id]
	if !ok {
		return nil, fmt.Errorf("property %q: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (c *YAMLCatalog) Properties() []domain.PropertyOffer {
	out := make([]domain.PropertyOffer, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.properties[id])
	}
	return out
}

func (c *YAMLCatalog) PropertiesByHost(hostID string) []domain.PropertyOffer {
	var out []domain.PropertyOffer
	for _, id := range c.order {
		if p := c.properties[id]; p.HostID == hostID {
			out = append(out, p)
		}
	}
	return out
}

func (c *YAMLCatalog) HostFor(propertyID string) (*domain.Host, error) {
	p, ok := c.properties[propertyID]
	if !ok {
		return nil, fmt.Errorf("property %q: %w", propertyID, domain.ErrNotFound)
	}
	h := c.hosts[p.HostID]
	return &h, nil
}

func (c *YAMLCatalog) HostByChatID(chatID string) (*domain.Host, error) {
	for _, h := range c.hosts {
		if h.ChatID == chatID {
			host := h
			return &host, nil
		}
	}
	return nil, fmt.Errorf("host with chat id %q: %w", chatID, domain.ErrNotFound)
}
