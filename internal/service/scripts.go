package service

// chatScript posts the upstream request from inside the page and resolves to
// a JSON string {status, text} or {error}.
const chatScript = `async (params) => {
	try {
		const response = await fetch(params.path, {
			method: "POST",
			headers: params.headers,
			body: params.body,
		});
		const text = await response.text();
		return JSON.stringify({ status: response.status, text });
	} catch (error) {
		return JSON.stringify({ error: String((error && error.message) || error) });
	}
}`

// streamScript posts the upstream request and forwards text deltas through
// the exposed binding as they arrive. Deltas found in one read are sent as a
// single batch; null marks completion. Every send is awaited so batches reach
// Go in the order they were produced.
const streamScript = `async (params) => {
	const send = (chunk) => window[params.binding](chunk);
	let batch = [];
	const flush = async () => {
		if (batch.length > 0) {
			const pending = batch;
			batch = [];
			await send({ batch: pending });
		}
	};
	const handle = (raw) => {
		const line = raw.trim();
		if (!line.startsWith("data: ")) return false;
		const payload = line.substring(6);
		if (payload === "[DONE]") return true;
		try {
			const event = JSON.parse(payload);
			if (event && event.type === "text-delta" && typeof event.delta === "string" && event.delta) {
				batch.push(event.delta);
			}
		} catch (e) {}
		return false;
	};

	try {
		const response = await fetch(params.path, {
			method: "POST",
			headers: params.headers,
			body: params.body,
		});
		if (!response.ok) {
			await send({ error: "HTTP " + response.status, status: response.status });
			return JSON.stringify({ status: response.status });
		}

		const reader = response.body.getReader();
		const decoder = new TextDecoder();
		let buffer = "";
		try {
			while (true) {
				const { done, value } = await reader.read();
				if (done) break;
				buffer += decoder.decode(value, { stream: true });

				let index;
				while ((index = buffer.indexOf("\n")) !== -1) {
					const line = buffer.substring(0, index);
					buffer = buffer.substring(index + 1);
					if (handle(line)) {
						await flush();
						await send(null);
						return JSON.stringify({ status: response.status });
					}
				}
				await flush();
			}
			buffer += decoder.decode();
			if (buffer.length > 0) handle(buffer);
			await flush();
			await send(null);
			return JSON.stringify({ status: response.status });
		} finally {
			reader.releaseLock();
		}
	} catch (error) {
		const message = String((error && error.message) || error);
		try {
			await flush();
			await send({ error: message });
		} catch (e) {}
		return JSON.stringify({ error: message });
	}
}`
