package crawl

import "fmt"

// Variant identifies the addressing strategy carried by a Descriptor.
type Variant uint8

const (
	variantInvalid Variant = iota
	// VariantID addresses an element by its id attribute.
	VariantID
	// VariantName addresses a form control by its name attribute.
	VariantName
	// VariantTitle addresses an anchor by its title attribute.
	VariantTitle
	// VariantPath addresses elements by an XPath expression.
	VariantPath
	// VariantText addresses an anchor by its visible text.
	VariantText
)

func (v Variant) String() string {
	switch v {
	case VariantID:
		return "id"
	case VariantName:
		return "name"
	case VariantTitle:
		return "title"
	case VariantPath:
		return "path"
	case VariantText:
		return "text"
	default:
		return "invalid"
	}
}

// Descriptor is an immutable specification of how to locate a node. It is
// built by one of the By* constructors at call time and never mutated.
type Descriptor struct {
	variant Variant
	value   string
}

// ByID describes a node by its id attribute.
func ByID(id string) Descriptor { return Descriptor{variant: VariantID, value: id} }

// ByName describes a form control by its name attribute.
func ByName(name string) Descriptor { return Descriptor{variant: VariantName, value: name} }

// ByTitle describes an anchor by its title attribute.
func ByTitle(title string) Descriptor { return Descriptor{variant: VariantTitle, value: title} }

// ByPath describes nodes by an XPath expression, evaluated by the engine.
func ByPath(expr string) Descriptor { return Descriptor{variant: VariantPath, value: expr} }

// ByText describes an anchor by its visible text content.
func ByText(text string) Descriptor { return Descriptor{variant: VariantText, value: text} }

// Variant reports the addressing strategy of the descriptor.
func (d Descriptor) Variant() Variant { return d.variant }

// Value reports the raw lookup value (id, name, expression, ...).
func (d Descriptor) Value() string { return d.value }

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%q)", d.variant, d.value)
}
