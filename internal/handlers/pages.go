package handlers

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/logging"
	"github.com/vidshare/backend/internal/models"
)

var pages = template.Must(template.New("layout").Parse(`{{define "head"}}<!doctype html>
<html lang="en"><head><meta charset="utf-8"><title>VidShare{{if .Title}} | {{.Title}}{{end}}</title></head><body>
<nav><a href="/">VidShare</a>{{if .Session}} <span>{{.Session.Email}}</span> <a href="/upload">Upload</a>{{else}} <a href="/login">Sign in</a> <a href="/register">Register</a>{{end}}</nav>
{{end}}
{{define "home"}}{{template "head" .}}<main>
{{range .Videos}}<article><h2>{{.Title}}</h2>
{{if .Controls}}<video src="{{.VideoURL}}" poster="{{.ThumbnailURL}}" width="{{.Transformation.Width}}" height="{{.Transformation.Height}}" controls></video>{{else}}<video src="{{.VideoURL}}" poster="{{.ThumbnailURL}}" width="{{.Transformation.Width}}" height="{{.Transformation.Height}}" autoplay muted loop></video>{{end}}
<p>{{.Description}}</p></article>
{{else}}<p>No videos yet.</p>
{{end}}</main></body></html>{{end}}
{{define "credentials"}}{{template "head" .}}<main><h1>{{.Title}}</h1>
<form id="credentials"><label>Email <input name="email" type="email" required></label>
<label>Password <input name="password" type="password" required></label>
<button type="submit">{{.Title}}</button></form>
{{range .Providers}}<p><a href="/api/auth/oauth/{{.}}">Continue with {{.}}</a></p>{{end}}
<p id="status"></p>
<script>
document.getElementById("credentials").addEventListener("submit", async (e) => {
  e.preventDefault();
  const form = new FormData(e.target);
  const res = await fetch("{{.Action}}", {method: "POST", headers: {"Content-Type": "application/json"},
    body: JSON.stringify({email: form.get("email"), password: form.get("password")})});
  const body = await res.json();
  if (res.ok) { window.location = "{{.Next}}"; } else { document.getElementById("status").textContent = body.error; }
});
</script></main></body></html>{{end}}
{{define "upload"}}{{template "head" .}}<main><h1>{{.Title}}</h1>
<form id="upload"><label>Title <input name="title" required></label>
<label>Description <textarea name="description" required></textarea></label>
<label>Video <input name="video" type="file" accept="video/*" required></label>
<label>Thumbnail <input name="thumbnail" type="file" accept="image/*" required></label>
<button type="submit">Publish</button></form>
<progress id="progress" max="100" value="0"></progress>
<p id="status"></p>
<script>
function send(file, folder) {
  const q = new URLSearchParams({fileName: file.name, contentType: file.type, folder: folder});
  return fetch("/api/auth/imagekit-auth?" + q).then(async (res) => {
    const cred = await res.json();
    if (!res.ok) { throw new Error(cred.error); }
    return new Promise((resolve, reject) => {
      const xhr = new XMLHttpRequest();
      xhr.upload.onprogress = (e) => { if (e.lengthComputable) { document.getElementById("progress").value = 100 * e.loaded / e.total; } };
      xhr.onerror = () => reject(new Error("upload failed"));
      let body = file;
      if (cred.provider === "imagekit") {
        body = new FormData();
        for (const [k, v] of Object.entries({fileName: file.name, publicKey: cred.publicKey, signature: cred.signature, expire: cred.expire, token: cred.token, folder: folder, useUniqueFileName: "true"})) { body.append(k, v); }
        body.append("file", file);
        xhr.open("POST", cred.uploadUrl);
        xhr.onload = () => xhr.status < 300 ? resolve(JSON.parse(xhr.responseText).url) : reject(new Error("upload rejected"));
      } else {
        xhr.open(cred.method || "PUT", cred.uploadUrl);
        for (const [k, v] of Object.entries(cred.headers || {})) { xhr.setRequestHeader(k, v); }
        xhr.onload = () => xhr.status < 300 ? resolve(cred.publicUrl || cred.uploadUrl.split("?")[0]) : reject(new Error("upload rejected"));
      }
      xhr.send(body);
    });
  });
}
document.getElementById("upload").addEventListener("submit", async (e) => {
  e.preventDefault();
  const form = new FormData(e.target);
  const status = document.getElementById("status");
  try {
    const videoUrl = await send(form.get("video"), "videos");
    const thumbnailUrl = await send(form.get("thumbnail"), "images");
    const res = await fetch("/api/auth/video", {method: "POST", headers: {"Content-Type": "application/json"},
      body: JSON.stringify({title: form.get("title"), description: form.get("description"), videoUrl: videoUrl, thumbnailUrl: thumbnailUrl})});
    const body = await res.json();
    if (res.ok) { window.location = "/"; } else { status.textContent = body.error; }
  } catch (err) { status.textContent = err.message; }
});
</script></main></body></html>{{end}}`))

type pageData struct {
	Title     string
	Session   *auth.Session
	Videos    []models.Video
	Providers []string
	Action    string
	Next      string
}

// PageHandler renders the minimal HTML front end.
type PageHandler struct {
	Videos    VideoStore
	Sessions  SessionReader
	Providers []string
}

// Home handles GET / with the newest videos.
func (h PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := h.base(r, "")
	if h.Videos != nil {
		videos, err := h.Videos.List(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Error("list videos for home page failed", "error", err)
		}
		data.Videos = videos
	}
	h.render(w, r, "home", data)
}

// Login handles GET /login.
func (h PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	data := h.base(r, "Sign in")
	data.Action = "/api/auth/login"
	data.Next = localRedirect(r.URL.Query().Get("callbackUrl"))
	data.Providers = h.Providers
	h.render(w, r, "credentials", data)
}

// Register handles GET /register.
func (h PageHandler) Register(w http.ResponseWriter, r *http.Request) {
	data := h.base(r, "Register")
	data.Action = "/api/auth/register"
	data.Next = "/login"
	h.render(w, r, "credentials", data)
}

// Upload handles GET /upload. Access control keeps anonymous users out.
func (h PageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "upload", h.base(r, "Upload"))
}

// localRedirect returns target when it is a path on this site and "/" otherwise.
// Browsers treat a backslash like a slash, so "/\host" would leave the site.
func localRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsRune(target, '\\') {
		return "/"
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return "/"
	}
	if strings.ContainsRune(parsed.Path, '\\') || strings.HasPrefix(parsed.Path, "//") {
		return "/"
	}
	return target
}

func (h PageHandler) base(r *http.Request, title string) pageData {
	data := pageData{Title: title}
	if session, ok := currentSession(r, h.Sessions); ok {
		data.Session = &session
	}
	return data
}

func (h PageHandler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logging.FromContext(r.Context()).Error("render page failed", "page", name, "error", err)
	}
}
