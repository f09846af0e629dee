package inject

import (
	"bytes"
	"fmt"
	"html"
	"text/template"
)

// DefaultStructuredMarker identifies the rich-text editor subsystem whose
// containers need paragraph-wrapped content.
const DefaultStructuredMarker = "[data-lexical-editor]"

// Scripts are single expressions (an invoked arrow function) so that every
// backend can evaluate them and receive the returned value. They always
// return something; some evaluators treat an undefined result as an error.

var scriptFuncs = template.FuncMap{"js": JSString}

var probeTmpl = template.Must(template.New("probe").Funcs(scriptFuncs).Parse(`(() => {
  const el = document.querySelector({{js .Locator}});
  if (!el) {
{{- if .Debug}}
    const textareas = document.querySelectorAll('textarea');
    const editables = document.querySelectorAll('[contenteditable="true"]');
    console.debug('chatcast: input not found', {{js .Locator}}, textareas.length, editables.length);
    return JSON.stringify({found: false, textareas: textareas.length, editables: editables.length});
{{- else}}
    return JSON.stringify({found: false});
{{- end}}
  }
  return JSON.stringify({
    found: true,
    tag: String(el.tagName || '').toLowerCase(),
    contentEditable: String(el.contentEditable),
    structured: el.closest({{js .Marker}}) !== null
  });
})()`))

var plainFillTmpl = template.Must(template.New("plain").Funcs(scriptFuncs).Parse(`(() => {
  const el = document.querySelector({{js .Locator}});
  if (!el) return false;
  const text = {{js .Text}};
  const proto = String(el.tagName).toLowerCase() === 'textarea'
    ? window.HTMLTextAreaElement.prototype
    : window.HTMLInputElement.prototype;
  const desc = Object.getOwnPropertyDescriptor(proto, 'value');
  if (desc && desc.set) {
    desc.set.call(el, text);
  } else {
    el.value = text;
  }
  el.focus();
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`))

var structuredFillTmpl = template.Must(template.New("structured").Funcs(scriptFuncs).Parse(`(() => {
  const el = document.querySelector({{js .Locator}});
  if (!el) return false;
  el.focus();
  el.innerHTML = {{js .HTML}};
  el.dispatchEvent(new InputEvent('input', {
    bubbles: true,
    cancelable: true,
    inputType: 'insertText',
    data: {{js .Text}}
  }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  el.dispatchEvent(new Event('keyup', { bubbles: true }));
  return true;
})()`))

var genericFillTmpl = template.Must(template.New("generic").Funcs(scriptFuncs).Parse(`(() => {
  const el = document.querySelector({{js .Locator}});
  if (!el) return false;
  el.textContent = {{js .Text}};
  el.focus();
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`))

var submitTmpl = template.Must(template.New("submit").Funcs(scriptFuncs).Parse(`(() => {
  const button = {{if .Button}}document.querySelector({{js .Button}}){{else}}null{{end}};
  if (button) {
    button.click();
    return 'clicked';
  }
  const el = document.querySelector({{js .Input}});
  if (!el) return 'none';
  el.dispatchEvent(new KeyboardEvent('keydown', {
    key: 'Enter',
    code: 'Enter',
    keyCode: 13,
    which: 13,
    bubbles: true,
    cancelable: true
  }));
  return 'enter';
})()`))

type probeData struct {
	Locator string
	Marker  string
	Debug   bool
}

type fillData struct {
	Locator string
	Text    string
	HTML    string
}

type submitData struct {
	Button string
	Input  string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s script: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// ProbeScript returns the script that locates the input surface and reports
// its ElementShape as JSON text.
func ProbeScript(locator, marker string, debug bool) (string, error) {
	if marker == "" {
		marker = DefaultStructuredMarker
	}
	return render(probeTmpl, probeData{Locator: locator, Marker: marker, Debug: debug})
}

// FillScript returns the fill script for kind. It evaluates to true when the
// element was still present.
func FillScript(kind SurfaceKind, locator, text string) (string, error) {
	data := fillData{Locator: locator, Text: text}
	switch kind {
	case SurfacePlainField:
		return render(plainFillTmpl, data)
	case SurfaceStructuredEditable:
		// The editor rebuilds its model from the markup, so user text is
		// escaped to stay text.
		data.HTML = "<p>" + html.EscapeString(text) + "</p>"
		return render(structuredFillTmpl, data)
	case SurfaceGenericEditable:
		return render(genericFillTmpl, data)
	default:
		return "", fmt.Errorf("no fill strategy for surface %s", kind)
	}
}

// SubmitScript returns the script that clicks the submit control or, when it
// is absent, sends an Enter keydown to the input surface.
func SubmitScript(buttonLocator, inputLocator string) (string, error) {
	return render(submitTmpl, submitData{Button: buttonLocator, Input: inputLocator})
}
