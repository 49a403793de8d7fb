package browser

// stealthScript runs before any page script and removes the markers that
// identify an automated browser.
const stealthScript = `(() => {
	Object.defineProperty(navigator, "webdriver", { get: () => false });
	delete window.domAutomation;
	delete window.domAutomationController;
	delete window._WEBDRIVER_ELEM_CACHE;
	delete window.phantom;
	delete window.callPhantom;
	delete window.nightmare;
	delete window.selenium;
	if (!window.chrome) window.chrome = { runtime: {} };
	delete window.playwright;
	delete window.__playwright;
	delete window._playwright;
})();`
