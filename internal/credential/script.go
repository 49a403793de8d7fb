package credential

// fetchScript downloads the challenge script from inside the page so the
// request carries the session's cookies. It always resolves to a JSON string.
const fetchScript = `async (params) => {
	const controller = new AbortController();
	const timer = setTimeout(() => controller.abort(), params.timeoutMs);
	try {
		const headers = { Accept: "text/javascript, application/javascript" };
		if (params.userAgent) headers["User-Agent"] = params.userAgent;
		const response = await fetch(params.url, {
			method: "GET",
			headers,
			signal: controller.signal,
		});
		const text = response.ok ? await response.text() : "";
		return JSON.stringify({ status: response.status, text });
	} catch (error) {
		return JSON.stringify({ error: String((error && error.message) || error) });
	} finally {
		clearTimeout(timer);
	}
}`
