package chromeruntime

// pageScript installs window.__vs, which owns the canvas, its capture
// stream and the MediaRecorder of one tab.
const pageScript = `
window.__vs = (() => {
  const s = { pending: [], error: null };
  const toB64 = (bytes) => {
    let bin = "";
    for (let i = 0; i < bytes.length; i += 0x8000) {
      bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
    }
    return btoa(bin);
  };
  return {
    init(w, h, mimeType, bps, timeslice) {
      const canvas = document.createElement("canvas");
      canvas.width = w;
      canvas.height = h;
      document.body.appendChild(canvas);
      s.ctx = canvas.getContext("2d");
      s.stream = canvas.captureStream(0);
      s.track = s.stream.getVideoTracks()[0];
      const opts = {};
      if (mimeType) opts.mimeType = mimeType;
      if (bps > 0) opts.videoBitsPerSecond = bps;
      s.rec = new MediaRecorder(s.stream, opts);
      s.rec.ondataavailable = (e) => {
        if (e.data && e.data.size > 0) {
          s.pending.push(e.data.arrayBuffer().then((b) => toB64(new Uint8Array(b))));
        }
      };
      s.rec.onerror = (e) => { s.error = String((e && e.error) || e); };
      s.rec.start(timeslice);
      return s.rec.mimeType;
    },
    async draw(jpegB64) {
      const res = await fetch("data:image/jpeg;base64," + jpegB64);
      const bmp = await createImageBitmap(await res.blob());
      s.ctx.drawImage(bmp, 0, 0, s.ctx.canvas.width, s.ctx.canvas.height);
      bmp.close();
      s.track.requestFrame();
      return true;
    },
    async take() {
      const p = s.pending;
      s.pending = [];
      return { chunks: await Promise.all(p), error: s.error || "" };
    },
    stop() {
      return new Promise((resolve) => {
        if (s.rec.state === "inactive") { resolve(window.__vs.take()); return; }
        s.rec.onstop = () => resolve(window.__vs.take());
        s.rec.stop();
      });
    },
  };
})();
true;
`
