// internal/browser/script/prelude.go
package script

// prelude installs the DOM surface on top of the __host functions. It runs
// once per runtime before any page script.
const prelude = `
(function (global, host) {
  "use strict";

  var nodes = {};
  var listeners = {};
  var windowListeners = {};
  var timers = {};
  var nextTimer = 1;
  var rafCallbacks = [];
  var requests = {};
  var nextRequest = 1;

  function key(win, handle) { return win + ":" + handle; }

  // guard runs one callback so that a throw is reported and the caller
  // moves on to the next one.
  function guard(source, fn, thisArg, args) {
    try {
      fn.apply(thisArg, args);
    } catch (e) {
      host.reportError(source, String(e));
    }
  }

  function Node(win, handle) {
    this.window = win;
    this.handle = handle;
  }

  function wrap(win, handle) {
    var k = key(win, handle);
    if (!nodes[k]) { nodes[k] = new Node(win, handle); }
    return nodes[k];
  }

  Node.prototype.getAttribute = function (name) {
    return host.getAttribute(this.window, this.handle, String(name));
  };
  Node.prototype.setAttribute = function (name, value) {
    host.setAttribute(this.window, this.handle, String(name), String(value));
  };
  Node.prototype.addEventListener = function (type, fn) {
    var k = key(this.window, this.handle);
    if (!listeners[k]) { listeners[k] = {}; }
    if (!listeners[k][type]) { listeners[k][type] = []; }
    listeners[k][type].push(fn);
  };
  Node.prototype.dispatchEvent = function (evt) {
    var list = (listeners[key(this.window, this.handle)] || {})[evt.type] || [];
    for (var i = 0; i < list.length; i++) {
      guard("listener:" + evt.type, list[i], this, [evt]);
    }
    return evt.defaultAllowed;
  };
  Object.defineProperty(Node.prototype, "innerHTML", {
    set: function (s) { host.innerHTML(this.window, this.handle, String(s)); }
  });
  Object.defineProperty(Node.prototype, "style", {
    set: function (s) { host.setStyle(this.window, this.handle, String(s)); }
  });

  function Event(type) {
    this.type = type;
    this.defaultAllowed = true;
  }
  Event.prototype.preventDefault = function () { this.defaultAllowed = false; };

  function Document(win) { this.window = win; }
  Document.prototype.querySelectorAll = function (selector) {
    var win = this.window;
    return host.querySelectorAll(win, String(selector)).map(function (h) { return wrap(win, h); });
  };
  Document.prototype.querySelector = function (selector) {
    var all = this.querySelectorAll(selector);
    return all.length ? all[0] : null;
  };

  function Window(id) {
    this.id = id;
    this.document = new Document(id);
  }
  Window.prototype.postMessage = function (data, origin) {
    host.postMessage(this.id, data, origin === undefined ? "*" : String(origin));
  };
  Object.defineProperty(Window.prototype, "parent", {
    get: function () {
      var id = host.parent();
      return id < 0 ? this : new Window(id);
    }
  });

  var self = new Window(host.window());
  self.addEventListener = function (type, fn) {
    if (!windowListeners[type]) { windowListeners[type] = []; }
    windowListeners[type].push(fn);
  };

  function XMLHttpRequest() { this.id = nextRequest++; }
  XMLHttpRequest.prototype.open = function (method, url, isAsync) {
    this.method = String(method);
    this.url = String(url);
    this.isAsync = isAsync === undefined ? true : !!isAsync;
  };
  XMLHttpRequest.prototype.send = function (body) {
    requests[this.id] = this;
    var text = host.xhrSend(this.method, this.url, body === undefined || body === null ? null : String(body), this.isAsync, this.id);
    if (!this.isAsync) {
      this.responseText = text;
      delete requests[this.id];
    }
  };

  global.Node = Node;
  global.Event = Event;
  global.XMLHttpRequest = XMLHttpRequest;
  global.window = self;
  global.document = self.document;
  global.parent = self.parent;
  global.addEventListener = self.addEventListener;
  global.postMessage = function (data, origin) { self.postMessage(data, origin); };

  global.setTimeout = function (fn, ms) {
    var id = nextTimer++;
    timers[id] = fn;
    host.setTimeout(id, ms === undefined ? 0 : Number(ms));
    return id;
  };
  global.requestAnimationFrame = function (fn) {
    rafCallbacks.push(fn);
    host.requestAnimationFrame();
  };

  global.__dispatchEvent = function (handle, type) {
    return wrap(host.window(), handle).dispatchEvent(new Event(type));
  };
  global.__runTimeout = function (id) {
    var fn = timers[id];
    delete timers[id];
    if (fn) { fn(); }
  };
  global.__runAnimationFrame = function () {
    var list = rafCallbacks;
    rafCallbacks = [];
    for (var i = 0; i < list.length; i++) { guard("raf", list[i], undefined, []); }
  };
  global.__xhrLoad = function (id, text) {
    var req = requests[id];
    delete requests[id];
    if (!req) { return; }
    req.responseText = text;
    if (req.onload) { req.onload({ target: req }); }
  };
  global.__dispatchMessage = function (data) {
    var list = windowListeners["message"] || [];
    for (var i = 0; i < list.length; i++) {
      guard("message", list[i], self, [{ type: "message", data: data }]);
    }
  };
})(this, __host);
`
