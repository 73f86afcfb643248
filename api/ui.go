package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// homePage is the embedded mobile UI: camera capture, optional context text,
// one button. Results from /identify are injected as an HTML fragment.
const homePage = `<!DOCTYPE html>
<html lang="fr">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>PartFinder</title>
    <style>
        body { font-family: sans-serif; background: #f3f4f6; padding: 15px; }
        .card { background: white; max-width: 500px; margin: auto; padding: 20px; border-radius: 15px; border-top: 8px solid #ea580c; }
        h1 { color: #ea580c; text-align: center; }
        .btn { width: 100%; padding: 15px; border-radius: 8px; border: none; font-weight: bold; cursor: pointer; margin-top: 10px; }
        .btn-main { background: #ea580c; color: white; }
        .section { background: #fff7ed; border-left: 4px solid #ea580c; padding: 10px; margin-top: 10px; border-radius: 4px; }
        .web { background: #eff6ff; border-left-color: #2563eb; }
        .error { background: #fef2f2; border-left-color: #dc2626; }
        .note { color: #6b7280; font-size: 0.85em; }
        .domain { color: #6b7280; font-size: 0.85em; }
        #preview { width: 100%; border-radius: 10px; margin-top: 10px; display: none; }
    </style>
</head>
<body>
    <div class="card">
        <h1>🔍 PartFinder</h1>
        <img id="preview" alt="">
        <button class="btn" style="background:#6b7280; color:white;" onclick="document.getElementById('in').click()">📸 PHOTO DE LA PIÈCE</button>
        <input type="file" id="in" accept="image/*" capture="environment" hidden onchange="pv(this)">
        <textarea id="ctx" style="width:100%; margin-top:10px; height:60px;" placeholder="Détails (ex: sous l'évier)"></textarea>
        <button id="go" class="btn btn-main" onclick="run()">IDENTIFIER LA PIÈCE</button>
        <div id="loading" style="display:none; text-align:center;">Analyse en cours...</div>
        <div id="result"></div>
    </div>
    <script>
        let file;
        function pv(i) { file = i.files[0]; const r = new FileReader(); r.onload = (e) => { const p = document.getElementById('preview'); p.src = e.target.result; p.style.display = 'block'; }; r.readAsDataURL(file); }
        async function run() {
            const res = document.getElementById('result'); const load = document.getElementById('loading');
            if (!file) { res.innerHTML = '<div class="section error"><p>Prenez d\'abord une photo.</p></div>'; return; }
            res.innerHTML = ''; load.style.display = 'block';
            const fd = new FormData(); fd.append('image', file); fd.append('context', document.getElementById('ctx').value);
            try {
                const r = await fetch('/identify', { method: 'POST', body: fd });
                res.innerHTML = await r.text();
            } catch (e) {
                res.innerHTML = '<div class="section error"><p>Erreur réseau. Réessayez.</p></div>';
            }
            load.style.display = 'none';
        }
    </script>
</body>
</html>
`
