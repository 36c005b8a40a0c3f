package crawl

import "fmt"

// ElementKind is the closed set of logical element categories the DSL can
// address. Each kind accepts only the descriptor variants listed in the
// resolution table; pairing a kind with any other variant is a caller error.
type ElementKind uint8

const (
	kindInvalid ElementKind = iota
	// KindPage is the whole document. Pages are resolved through navigation,
	// never through a descriptor.
	KindPage
	KindForm
	KindTextField
	KindSubmit
	KindLink
	KindImage
	KindContainer
	KindArea
)

func (k ElementKind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindForm:
		return "form"
	case KindTextField:
		return "textField"
	case KindSubmit:
		return "submit"
	case KindLink:
		return "link"
	case KindImage:
		return "image"
	case KindContainer:
		return "container"
	case KindArea:
		return "area"
	default:
		return "invalid"
	}
}

// Target pairs an element kind with the descriptor used to resolve it. It is
// the unit handed to In, ForAll and From.
type Target struct {
	Kind ElementKind
	Desc Descriptor
}

func (t Target) String() string {
	return fmt.Sprintf("%s[%s]", t.Kind, t.Desc)
}

// Form targets a form element. Forms resolve by id against the whole
// document, regardless of the current scope.
func Form(d Descriptor) Target { return Target{Kind: KindForm, Desc: d} }

// TextField targets a text input within the current scope.
func TextField(d Descriptor) Target { return Target{Kind: KindTextField, Desc: d} }

// SubmitControl targets a submit button or input within the current scope.
func SubmitControl(d Descriptor) Target { return Target{Kind: KindSubmit, Desc: d} }

// Anchor targets a link. Id and text lookups scan the whole document even
// when nested; path and title lookups stay within the current scope.
func Anchor(d Descriptor) Target { return Target{Kind: KindLink, Desc: d} }

// Image targets an img element within the current scope.
func Image(d Descriptor) Target { return Target{Kind: KindImage, Desc: d} }

// Container targets a grouping element such as a div or section. Id lookups
// scan the whole document; path lookups stay within the current scope.
func Container(d Descriptor) Target { return Target{Kind: KindContainer, Desc: d} }

// Area targets an image-map area within the current scope.
func Area(d Descriptor) Target { return Target{Kind: KindArea, Desc: d} }
