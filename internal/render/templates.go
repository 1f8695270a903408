package render

import "fmt"

// Built-in HTML documents selectable by name from the send request. Each is a
// complete message body with {{variable}} placeholders.
var builtinTemplates = map[string]string{
	"basic":  basicTemplate,
	"appeal": appealTemplate,
}

// Template returns the built-in HTML document with the given name. An empty
// name selects "basic".
func Template(name string) (string, error) {
	if name == "" {
		name = "basic"
	}
	tmpl, ok := builtinTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return tmpl, nil
}

// TemplateNames lists the available built-in documents.
func TemplateNames() []string {
	return []string{"appeal", "basic"}
}

const basicTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Georgia, 'Times New Roman', serif; line-height: 1.6;">
<p>Dear {{Name}},</p>
<p>Membership ID: <strong>{{MembershipID}}</strong><br>
Mobile: {{Mobile}}</p>
<p>{{Message}}</p>
<p>Thanks &amp; Regards</p>
</body>
</html>`

const appealTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: "Times New Roman", Times, serif; line-height: 1.6; color: #000; }
    .addressee { font-weight: bold; color: blue; }
    .banner { color: red; text-align: center; }
  </style>
</head>
<body>
<div style="font-size:17px;">
  <h3>To,</h3>
  <h3 class="addressee">{{Name}}</h3>
  <h3 class="addressee">{{MembershipID}}</h3>
  <h3 class="addressee">Mobile: {{Mobile}}</h3>
</div>

<h3 class="banner">{{Headline}}</h3>

<img src="cid:image1" alt="" style="max-width:100%; display:block; margin:auto; margin-top:30px;">

<h3 style="text-align:center;">
  Watch the step-by-step video:<br>
  <a href="{{VideoLink}}">{{VideoLink}}</a>
</h3>

<h3 style="color:red;">Dear {{Name}},</h3>
<p style="font-size:17px;">{{Message}}</p>

<img src="cid:image2" alt="" style="max-width:100%; display:block; margin:auto;">

<h3>Thanks &amp; Regards,</h3>
<p style="font-size:17px;">{{Signature}}</p>
</body>
</html>`
